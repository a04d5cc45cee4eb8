// Package discovery reconciles the servers a resource handler reports with the servers on
// record.
package discovery

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mhrivnak/orderflow/pkg/database/models"
	"github.com/mhrivnak/orderflow/pkg/database/repositories"
	"github.com/mhrivnak/orderflow/pkg/errdef"
	"github.com/mhrivnak/orderflow/pkg/metrics"
)

// HostnameField is copied to Server.Hostname. Every other field of a record is kept as a
// custom field value.
const HostnameField = "hostname"

// Record is one server as reported by a resource handler.
type Record map[string]string

// Identifier names the record fields that together identify a server within its handler.
type Identifier []string

// ParseIdentifier splits a comma separated list of field names.
func ParseIdentifier(value string) (Identifier, error) {
	var id Identifier
	for _, field := range strings.Split(value, ",") {
		if field = strings.TrimSpace(field); field != "" {
			id = append(id, field)
		}
	}
	if len(id) == 0 {
		return nil, errdef.NewBadRequest("resource identifier needs at least one field")
	}
	return id, nil
}

// Key joins the identifying values of rec.
func (id Identifier) Key(rec Record) (string, error) {
	values := make([]string, 0, len(id))
	for _, field := range id {
		value, ok := rec[field]
		if !ok || value == "" {
			return "", errdef.NewBadRequest("record has no value for identifier field %q", field)
		}
		values = append(values, value)
	}
	return strings.Join(values, "|"), nil
}

// Result counts what a sync did.
type Result struct {
	Created    int `json:"created"`
	Updated    int `json:"updated"`
	Historical int `json:"historical"`
	Skipped    int `json:"skipped"`
}

type Syncer struct {
	servers *repositories.ServerRepository
	log     logrus.FieldLogger
	now     func() time.Time
}

func NewSyncer(servers *repositories.ServerRepository, log logrus.FieldLogger) *Syncer {
	return &Syncer{servers: servers, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// Sync creates servers for new records, updates the matched ones and marks active servers
// missing from records HISTORICAL. Records without an identifier, and repeats of an identifier,
// are skipped.
func (s *Syncer) Sync(ctx context.Context, handlerID uuid.UUID, identifier Identifier, records []Record) (Result, error) {
	if len(identifier) == 0 {
		return Result{}, errdef.NewBadRequest("resource identifier needs at least one field")
	}
	handler, err := s.servers.GetHandler(ctx, handlerID)
	if err != nil {
		return Result{}, err
	}
	log := s.log.WithField("handler", handler.Name)

	var result Result
	err = s.servers.Transaction(ctx, func(tx *repositories.ServerRepository) error {
		existing, err := tx.ListByHandler(ctx, handlerID)
		if err != nil {
			return err
		}
		known := make(map[string]*models.Server, len(existing))
		for i := range existing {
			known[existing[i].Identifier] = &existing[i]
		}

		seen := make(map[string]bool, len(records))
		for _, rec := range records {
			key, err := identifier.Key(rec)
			if err != nil {
				log.WithError(err).Warn("Skipping discovered record")
				result.Skipped++
				continue
			}
			if seen[key] {
				log.WithField("identifier", key).Warn("Skipping repeated record")
				result.Skipped++
				continue
			}
			seen[key] = true

			if server, ok := known[key]; ok {
				fill(server, rec)
				server.Status = models.ServerActive
				if err := tx.Save(ctx, server); err != nil {
					return fmt.Errorf("failed to update server %s: %w", key, err)
				}
				result.Updated++
				continue
			}
			server := &models.Server{ResourceHandlerID: handlerID, Identifier: key, Status: models.ServerActive}
			fill(server, rec)
			if err := tx.Create(ctx, server); err != nil {
				return fmt.Errorf("failed to create server %s: %w", key, err)
			}
			result.Created++
		}

		var gone []uuid.UUID
		for _, server := range existing {
			if !seen[server.Identifier] && server.Status == models.ServerActive {
				gone = append(gone, server.ID)
			}
		}
		if err := tx.MarkHistorical(ctx, gone); err != nil {
			return err
		}
		result.Historical = len(gone)
		return tx.TouchHandler(ctx, handlerID, s.now())
	})
	if err != nil {
		return Result{}, err
	}

	metrics.RecordDiscovery(handler.Name, result.Created, result.Updated, result.Historical)
	log.WithFields(logrus.Fields{
		"created":    result.Created,
		"updated":    result.Updated,
		"historical": result.Historical,
		"skipped":    result.Skipped,
	}).Info("Discovery sync finished")
	return result, nil
}

func fill(server *models.Server, rec Record) {
	server.Hostname = rec[HostnameField]

	names := make([]string, 0, len(rec))
	for name := range rec {
		if name != HostnameField {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	server.CustomFieldValues = make([]models.CustomFieldValue, 0, len(names))
	for _, name := range names {
		server.CustomFieldValues = append(server.CustomFieldValues, models.CustomFieldValue{
			ServerID: server.ID,
			Name:     name,
			Value:    rec[name],
		})
	}
}
