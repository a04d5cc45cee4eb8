package approval

import (
	"context"
	"sort"

	"github.com/mhrivnak/orderflow/pkg/database/models"
	"github.com/mhrivnak/orderflow/pkg/database/repositories"
	"github.com/mhrivnak/orderflow/pkg/errdef"
	"github.com/mhrivnak/orderflow/pkg/hooks"
)

// Fields served by the built-in option generators.
const (
	FieldApprovalGroup = "approval_group"
	FieldGroup         = "group"
)

// RegisterOptionGenerators adds the built-in generators to reg.
func RegisterOptionGenerators(reg *hooks.OptionRegistry, groups *repositories.GroupRepository) {
	reg.Register(FieldApprovalGroup, approvalGroupOptions(groups))
	reg.Register(FieldGroup, requestableGroupOptions(groups))
}

// approvalGroupOptions lists the groups that have approvers. The initial value is the group
// an order of the requesting group would be routed to by default.
func approvalGroupOptions(groups *repositories.GroupRepository) hooks.OptionGenerator {
	return func(ctx context.Context, req hooks.OptionRequest) (hooks.Options, error) {
		candidates, err := groups.WithRole(ctx, models.RoleApprover)
		if err != nil {
			return hooks.Options{}, err
		}
		var opts hooks.Options
		for _, group := range candidates {
			opts.Options = append(opts.Options, hooks.Option{Value: group.Name, Label: group.Name})
		}
		if req.Group != nil {
			nearest, err := groups.NearestWithRole(ctx, req.Group.Name, models.RoleApprover)
			if err != nil && !errdef.IsNotFound(err) {
				return hooks.Options{}, err
			}
			if nearest != nil {
				opts.InitialValue = nearest.Name
			}
		}
		return opts, nil
	}
}

// requestableGroupOptions lists the groups the user may order for: the groups where they are
// a requestor and all groups below them.
func requestableGroupOptions(groups *repositories.GroupRepository) hooks.OptionGenerator {
	return func(ctx context.Context, req hooks.OptionRequest) (hooks.Options, error) {
		if req.User == nil {
			return hooks.Options{}, errdef.NewBadRequest("field %q needs a user", req.Field)
		}
		hierarchy, err := groups.Hierarchy(ctx)
		if err != nil {
			return hooks.Options{}, err
		}

		seen := make(map[string]bool)
		for _, name := range req.User.GroupNames(models.RoleRequestor) {
			seen[name] = true
			below, err := hierarchy.Descendants(name)
			if err != nil {
				return hooks.Options{}, err
			}
			for _, d := range below {
				seen[d] = true
			}
		}
		names := make([]string, 0, len(seen))
		for name := range seen {
			names = append(names, name)
		}
		sort.Strings(names)

		var opts hooks.Options
		for _, name := range names {
			opts.Options = append(opts.Options, hooks.Option{Value: name, Label: name})
		}
		if len(names) == 1 {
			opts.InitialValue = names[0]
		}
		return opts, nil
	}
}
