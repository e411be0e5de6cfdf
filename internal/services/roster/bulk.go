package roster

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/wavecheck/wavecheck/internal/broker/messages"
	"github.com/wavecheck/wavecheck/internal/models"
	"github.com/wavecheck/wavecheck/internal/storage/pgroster"
)

// Tab-separated roster paste layout: transporter id, name, status in the
// first three columns, start time in the sixth, company in the ninth.
const bulkMinColumns = 9

type BulkReplaceResult struct {
	RosterCount    int
	NewMasterCount int
}

// BulkReplaceRoster wipes the station's daily roster and rebuilds it from
// pasted tab-separated text. Master entries are created for transporter ids
// the registry does not know yet, committed before the roster batch so the
// roster never references an entry that failed to land. The wipe is not
// rolled back on a later failure; re-running the whole operation is the
// recovery path.
func (s *Service) BulkReplaceRoster(ctx context.Context, actor, stationID, text string) (*BulkReplaceResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.Wrap(ErrValidation, "bulk roster input is empty")
	}

	masters, err := s.store.ListMaster(ctx, stationID)
	if err != nil {
		return nil, err
	}
	byTransporter := make(map[string]models.MasterDriver, len(masters))
	for _, m := range masters {
		byTransporter[m.TransporterID] = m
	}

	if _, seq, err := s.store.WipeRoster(ctx, stationID); err != nil {
		return nil, err
	} else {
		s.notify(ctx, stationID, seq, messages.ActionReset)
	}

	var newMasters []models.MasterCreateInput
	queued := map[string]bool{}
	var drivers []models.DriverRecord

	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		cols := strings.Split(line, "\t")
		if len(cols) < bulkMinColumns {
			continue
		}
		for i := range cols {
			cols[i] = strings.TrimSpace(cols[i])
		}

		d := models.DriverRecord{
			TransporterID: cols[0],
			Name:          cols[1],
			Status:        cols[2],
			StartTime:     cols[5],
			CompanyName:   cols[8],
			BadgeID:       models.BadgeUnknown,
		}
		if m, ok := byTransporter[d.TransporterID]; ok {
			d.BadgeID = m.BadgeID
		} else if !queued[d.TransporterID] {
			// One master entry per unknown transporter id, however many
			// roster lines reference it.
			newMasters = append(newMasters, models.MasterCreateInput{
				UserID:        "NEW-" + d.TransporterID,
				Name:          d.Name,
				BadgeID:       models.BadgeNeedsUpdate,
				CompanyName:   d.CompanyName,
				TransporterID: d.TransporterID,
			})
			queued[d.TransporterID] = true
		}
		drivers = append(drivers, d)
	}

	if len(newMasters) > 0 {
		if err := s.store.CreateMasterBatch(ctx, stationID, newMasters); err != nil {
			return nil, err
		}
	}
	if len(drivers) > 0 {
		seq, err := s.store.InsertDrivers(ctx, stationID, drivers)
		if err != nil {
			return nil, err
		}
		s.notify(ctx, stationID, seq, messages.ActionBulkReplace)
	}

	s.audit(ctx, actor, stationID, "bulkRosterUpload",
		fmt.Sprintf("Uploaded roster with %d entries and added %d new master drivers", len(drivers), len(newMasters)))
	return &BulkReplaceResult{RosterCount: len(drivers), NewMasterCount: len(newMasters)}, nil
}

// MasterList returns the permanent registry of a station.
func (s *Service) MasterList(ctx context.Context, stationID string) ([]models.MasterDriver, error) {
	return s.store.ListMaster(ctx, stationID)
}

func (s *Service) AddMasterDriver(ctx context.Context, actor, stationID string, in models.MasterCreateInput) (*models.MasterDriver, error) {
	in.UserID = strings.TrimSpace(in.UserID)
	in.Name = strings.TrimSpace(in.Name)
	in.BadgeID = strings.TrimSpace(in.BadgeID)
	if in.UserID == "" || in.Name == "" || in.BadgeID == "" {
		return nil, errors.Wrap(ErrValidation, "userId, name and badgeId are required")
	}
	in.BadgeID = canonicalBadge(in.BadgeID)

	m, err := s.store.CreateMaster(ctx, stationID, in)
	if err != nil {
		return nil, err
	}
	s.audit(ctx, actor, stationID, "addDa", fmt.Sprintf("Added driver %s (Badge: %s) to the master list", in.Name, in.BadgeID))
	return m, nil
}

// ImportMaster commits pre-parsed spreadsheet rows as one batch. Rows
// missing userId, name or badge were already dropped by the parser; the
// guard here keeps the invariant regardless of caller.
func (s *Service) ImportMaster(ctx context.Context, actor, stationID string, rows []models.MasterCreateInput) (int, error) {
	valid := make([]models.MasterCreateInput, 0, len(rows))
	for _, r := range rows {
		if r.UserID == "" || r.Name == "" || r.BadgeID == "" {
			continue
		}
		r.BadgeID = canonicalBadge(r.BadgeID)
		valid = append(valid, r)
	}
	if len(valid) == 0 {
		return 0, errors.Wrap(ErrValidation, "no valid rows to import")
	}
	if err := s.store.CreateMasterBatch(ctx, stationID, valid); err != nil {
		return 0, err
	}
	s.audit(ctx, actor, stationID, "bulkImportDA", fmt.Sprintf("Imported %d drivers into the master list", len(valid)))
	return len(valid), nil
}

func (s *Service) DeleteMasterDriver(ctx context.Context, actor, stationID, id string) error {
	if err := s.store.DeleteMaster(ctx, stationID, id); err != nil {
		if errors.Is(err, pgroster.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	s.audit(ctx, actor, stationID, "deleteEntry", fmt.Sprintf("Deleted entry %s from master list", id))
	return nil
}

// ResetMasterList clears the permanent registry. Destructive.
func (s *Service) ResetMasterList(ctx context.Context, actor, stationID string) (int64, error) {
	deleted, err := s.store.ResetMaster(ctx, stationID)
	if err != nil {
		return 0, err
	}
	s.audit(ctx, actor, stationID, "resetDAList", fmt.Sprintf("Cleared the master list (%d entries)", deleted))
	return deleted, nil
}
