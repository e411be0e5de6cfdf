package roster

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/wavecheck/wavecheck/internal/broker/messages"
	"github.com/wavecheck/wavecheck/internal/models"
	"github.com/wavecheck/wavecheck/internal/storage/pgroster"
)

// Sentinel errors; the API layer maps them onto operator-facing responses.
var (
	ErrNotFound         = errors.New("driver not found")
	ErrValidation       = errors.New("invalid input")
	ErrAlreadyCheckedIn = errors.New("driver already checked in")
	// ErrPartialSync: the roster edit succeeded but no master entry shares
	// the transporter id, so the registry was not updated.
	ErrPartialSync = errors.New("master sync target not found")
)

type Store interface {
	LoadSnapshot(ctx context.Context, stationID string) (*pgroster.Snapshot, error)
	GetDriver(ctx context.Context, stationID, id string) (*models.DriverRecord, error)
	FindDriversByBadge(ctx context.Context, stationID string, candidates []string) ([]*models.DriverRecord, error)
	CreateDriver(ctx context.Context, stationID string, d models.DriverRecord) (*models.DriverRecord, uint64, error)
	CheckInDriver(ctx context.Context, stationID, id, status, checkInTime string) (*models.DriverRecord, bool, uint64, error)
	MarkRescue(ctx context.Context, stationID, id string) (uint64, error)
	UpdateDriverFields(ctx context.Context, stationID, id string, upd pgroster.DriverFieldUpdates) (*models.DriverRecord, uint64, error)
	DeleteDriver(ctx context.Context, stationID, id string) (uint64, error)
	WipeRoster(ctx context.Context, stationID string) (int64, uint64, error)
	InsertDrivers(ctx context.Context, stationID string, drivers []models.DriverRecord) (uint64, error)

	ListMaster(ctx context.Context, stationID string) ([]models.MasterDriver, error)
	FindMasterByTransporter(ctx context.Context, stationID, transporterID string) (*models.MasterDriver, error)
	FindMasterByBadge(ctx context.Context, stationID, badgeID string) (*models.MasterDriver, error)
	CreateMaster(ctx context.Context, stationID string, in models.MasterCreateInput) (*models.MasterDriver, error)
	CreateMasterBatch(ctx context.Context, stationID string, ins []models.MasterCreateInput) error
	UpdateMasterByTransporter(ctx context.Context, stationID, transporterID string, upd pgroster.DriverFieldUpdates) error
	DeleteMaster(ctx context.Context, stationID, id string) error
	ResetMaster(ctx context.Context, stationID string) (int64, error)

	AppendAudit(ctx context.Context, e models.AuditEntry) error
}

type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type Service struct {
	store    Store
	producer Publisher
	topic    string

	now func() time.Time
}

func New(store Store, producer Publisher, topic string) *Service {
	return &Service{store: store, producer: producer, topic: topic, now: time.Now}
}

// checkInStamp is the 24-hour wall-clock format shown on the roster board.
func (s *Service) checkInStamp() string {
	return s.now().Format("15:04:05")
}

// notify publishes a change-feed message. Best effort: the mutation is
// already committed, a lost notification only delays terminals until the
// next change.
func (s *Service) notify(ctx context.Context, stationID string, seq uint64, action string) {
	if s.producer == nil || seq == 0 {
		return
	}
	b, err := json.Marshal(messages.RosterChanged{
		StationID: stationID,
		Seq:       seq,
		Action:    action,
		ChangedAt: s.now().UTC(),
	})
	if err != nil {
		return
	}
	if err := s.producer.Publish(ctx, s.topic, []byte(stationID), b); err != nil {
		slog.Warn("roster change notification failed", "station", stationID, "seq", seq, "err", err)
	}
}

// audit is best effort too, matching the original console's fire-and-forget
// action log.
func (s *Service) audit(ctx context.Context, actor, stationID, action, details string) {
	e := models.AuditEntry{
		StationID: stationID,
		User:      actor,
		Action:    action,
		Details:   details,
		Timestamp: s.now().UnixMilli(),
	}
	if err := s.store.AppendAudit(ctx, e); err != nil {
		slog.Warn("audit append failed", "action", action, "err", err)
	}
}

// Snapshot returns the station's current roster and commit seq.
func (s *Service) Snapshot(ctx context.Context, stationID string) (*pgroster.Snapshot, error) {
	return s.store.LoadSnapshot(ctx, stationID)
}

// Scan outcomes.
const (
	ScanCheckedIn        = "checked_in"
	ScanAlreadyCheckedIn = "already_checked_in"
	ScanNotFound         = "not_found"
)

type ScanResult struct {
	Outcome string
	BadgeID string
	Driver  *models.DriverRecord
}

// badgeCandidates builds the lookup key set for a scanned badge: the raw
// string plus its canonical base-10 form when it parses as an integer.
// Old bulk imports persisted badge ids inconsistently, so both spellings
// must match.
func badgeCandidates(raw string) []string {
	out := []string{raw}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if c := strconv.FormatInt(n, 10); c != raw {
			out = append(out, c)
		}
	}
	return out
}

// canonicalBadge normalizes a badge id for new writes while lookups keep
// tolerating the historical spellings.
func canonicalBadge(raw string) string {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return strconv.FormatInt(n, 10)
	}
	return raw
}

// CheckInByBadge is the badge-scan hot path. A repeat scan is idempotent:
// the conditional store write guarantees the transition applies at most
// once and the original check-in stamp survives.
func (s *Service) CheckInByBadge(ctx context.Context, actor, stationID, rawBadge string) (*ScanResult, error) {
	badge := strings.TrimSpace(rawBadge)
	if badge == "" {
		return nil, errors.Wrap(ErrValidation, "badge id is empty")
	}

	found, err := s.store.FindDriversByBadge(ctx, stationID, badgeCandidates(badge))
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return &ScanResult{Outcome: ScanNotFound, BadgeID: badge}, nil
	}

	d := found[0]
	if models.IsCheckedIn(d.Status) {
		return &ScanResult{Outcome: ScanAlreadyCheckedIn, BadgeID: badge, Driver: d}, nil
	}

	rec, applied, seq, err := s.store.CheckInDriver(ctx, stationID, d.ID, models.StatusCheckedIn, s.checkInStamp())
	if err != nil {
		if errors.Is(err, pgroster.ErrNotFound) {
			return &ScanResult{Outcome: ScanNotFound, BadgeID: badge}, nil
		}
		return nil, err
	}
	if !applied {
		// Lost a race against a concurrent scan; report what the winner wrote.
		return &ScanResult{Outcome: ScanAlreadyCheckedIn, BadgeID: badge, Driver: rec}, nil
	}

	s.notify(ctx, stationID, seq, messages.ActionCheckIn)
	s.audit(ctx, actor, stationID, "checkIn", fmt.Sprintf("Checked in %s (Badge: %s)", rec.Name, rec.BadgeID))
	return &ScanResult{Outcome: ScanCheckedIn, BadgeID: badge, Driver: rec}, nil
}

// MarkStatus applies a status button press to one roster record.
func (s *Service) MarkStatus(ctx context.Context, actor, stationID, id, status string) (*models.DriverRecord, error) {
	switch status {
	case models.StatusCheckedIn, models.StatusCheckedInNoBadge:
		rec, applied, seq, err := s.store.CheckInDriver(ctx, stationID, id, status, s.checkInStamp())
		if err != nil {
			if errors.Is(err, pgroster.ErrNotFound) {
				return nil, ErrNotFound
			}
			return nil, err
		}
		if !applied {
			return rec, ErrAlreadyCheckedIn
		}
		s.notify(ctx, stationID, seq, messages.ActionStatusUpdate)
		s.audit(ctx, actor, stationID, "updateStatus", fmt.Sprintf("Marked driver %s as %s", id, status))
		return rec, nil

	case models.StatusOnRescue:
		seq, err := s.store.MarkRescue(ctx, stationID, id)
		if err != nil {
			if errors.Is(err, pgroster.ErrNotFound) {
				return nil, ErrNotFound
			}
			return nil, err
		}
		s.notify(ctx, stationID, seq, messages.ActionStatusUpdate)
		s.audit(ctx, actor, stationID, "updateStatus", fmt.Sprintf("Marked driver %s as On Rescue", id))
		return s.store.GetDriver(ctx, stationID, id)

	default:
		return nil, errors.Wrapf(ErrValidation, "unsupported status %q", status)
	}
}

// EditDriver updates a roster record's name/badge and propagates the same
// change to the master entry sharing its transporter id. A missing master
// entry does not undo the roster edit; it is reported as ErrPartialSync.
func (s *Service) EditDriver(ctx context.Context, actor, stationID, id string, name, badgeID *string) (*models.DriverRecord, error) {
	upd := pgroster.DriverFieldUpdates{Name: name}
	if badgeID != nil {
		b := canonicalBadge(strings.TrimSpace(*badgeID))
		if b == "" {
			return nil, errors.Wrap(ErrValidation, "badge id is empty")
		}
		upd.BadgeID = &b
	}
	if name != nil && strings.TrimSpace(*name) == "" {
		return nil, errors.Wrap(ErrValidation, "name is empty")
	}
	if upd.Empty() {
		return nil, errors.Wrap(ErrValidation, "nothing to update")
	}

	rec, seq, err := s.store.UpdateDriverFields(ctx, stationID, id, upd)
	if err != nil {
		if errors.Is(err, pgroster.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	s.notify(ctx, stationID, seq, messages.ActionEdit)
	s.audit(ctx, actor, stationID, "editRoster", fmt.Sprintf("Updated roster entry %s", id))

	if err := s.store.UpdateMasterByTransporter(ctx, stationID, rec.TransporterID, upd); err != nil {
		if errors.Is(err, pgroster.ErrNotFound) {
			return rec, ErrPartialSync
		}
		return rec, err
	}
	s.audit(ctx, actor, stationID, "editMasterDriver", fmt.Sprintf("Synced update for transporter %s", rec.TransporterID))
	return rec, nil
}

// AddDriver creates a single roster entry. When the badge is unknown to the
// master registry a permanent entry is created alongside, as the original
// console does.
func (s *Service) AddDriver(ctx context.Context, actor, stationID string, in models.DriverCreateInput) (*models.DriverRecord, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.BadgeID = strings.TrimSpace(in.BadgeID)
	in.StartTime = strings.TrimSpace(in.StartTime)
	in.CompanyName = strings.TrimSpace(in.CompanyName)
	if in.Name == "" || in.BadgeID == "" || in.StartTime == "" || in.CompanyName == "" {
		return nil, errors.Wrap(ErrValidation, "all fields are required")
	}
	badge := canonicalBadge(in.BadgeID)

	if _, err := s.store.FindMasterByBadge(ctx, stationID, badge); err != nil {
		if !errors.Is(err, pgroster.ErrNotFound) {
			return nil, err
		}
		_, err := s.store.CreateMaster(ctx, stationID, models.MasterCreateInput{
			UserID:        "N/A",
			Name:          in.Name,
			BadgeID:       badge,
			CompanyName:   in.CompanyName,
			TransporterID: "N/A",
		})
		if err != nil {
			return nil, err
		}
		s.audit(ctx, actor, stationID, "createMasterDriver", fmt.Sprintf("New driver %s (Badge: %s) saved to master list", in.Name, badge))
	}

	rec, seq, err := s.store.CreateDriver(ctx, stationID, models.DriverRecord{
		TransporterID: newTransporterID(stationID),
		BadgeID:       badge,
		Name:          in.Name,
		CompanyName:   in.CompanyName,
		StartTime:     in.StartTime,
		Status:        models.StatusAwaiting,
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, stationID, seq, messages.ActionAdd)
	s.audit(ctx, actor, stationID, "addRoster", fmt.Sprintf("Added %s (Badge: %s) to the daily roster", in.Name, badge))
	return rec, nil
}

// newTransporterID mints an ad-hoc transporter id for manually added
// drivers that have no registry correlation yet.
func newTransporterID(stationID string) string {
	return fmt.Sprintf("AT-%s-%d", strings.ToUpper(stationID), 100+rand.Intn(900))
}

func (s *Service) DeleteDriver(ctx context.Context, actor, stationID, id string) error {
	seq, err := s.store.DeleteDriver(ctx, stationID, id)
	if err != nil {
		if errors.Is(err, pgroster.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	s.notify(ctx, stationID, seq, messages.ActionDelete)
	s.audit(ctx, actor, stationID, "deleteEntry", fmt.Sprintf("Deleted entry %s from roster", id))
	return nil
}

// ResetRoster wipes the station's daily roster. Destructive; callers
// confirm with the operator before invoking.
func (s *Service) ResetRoster(ctx context.Context, actor, stationID string) (int64, error) {
	deleted, seq, err := s.store.WipeRoster(ctx, stationID)
	if err != nil {
		return 0, err
	}
	s.notify(ctx, stationID, seq, messages.ActionReset)
	s.audit(ctx, actor, stationID, "resetRoster", fmt.Sprintf("Cleared the daily roster (%d entries)", deleted))
	return deleted, nil
}
