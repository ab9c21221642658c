package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ticket-engine/internal/kafka"
	"ticket-engine/internal/logger"
	"ticket-engine/internal/models"
	"ticket-engine/internal/qrsign"
	"ticket-engine/internal/reconcile"
	"ticket-engine/internal/storage"
)

var (
	ErrBadSignature       = errors.New("qr payload signature is invalid")
	ErrMalformedPayload   = errors.New("qr payload is malformed")
	ErrTicketVoid         = errors.New("ticket is void")
	ErrPayloadMismatch    = errors.New("qr payload does not match ticket")
	ErrUnverifiedScan     = errors.New("scans without a qr payload are disabled")
	ErrSeatTicketNotFound = errors.New("seat ticket not found")
)

// ScanService verifies and admits seat-class tickets at the gate. Signature
// checks run before any store access so forged payloads never learn whether
// a ticket id exists.
type ScanService struct {
	store           storage.Store
	codec           *qrsign.Codec
	producer        *kafka.Producer
	log             *logger.Logger
	allowUnverified bool

	now func() time.Time
}

func NewScanService(store storage.Store, codec *qrsign.Codec, producer *kafka.Producer, allowUnverified bool, log *logger.Logger) *ScanService {
	return &ScanService{
		store:           store,
		codec:           codec,
		producer:        producer,
		log:             log,
		allowUnverified: allowUnverified,
		now:             time.Now,
	}
}

// VerifyResult is the read-only gate check. AlreadyUsed carries the original
// admission so staff can see when and where the ticket first entered.
type VerifyResult struct {
	Valid        bool               `json:"valid"`
	Ticket       *models.SeatTicket `json:"ticket,omitempty"`
	AlreadyUsed  bool               `json:"already_used"`
	OriginalScan *models.ScanRecord `json:"original_scan,omitempty"`
}

// ScanResult reports a state-changing admission. AlreadyScanned with the
// original record means the gate attempt was a duplicate, not an error.
type ScanResult struct {
	Scanned        bool               `json:"scanned"`
	AlreadyScanned bool               `json:"already_scanned"`
	Ticket         *models.SeatTicket `json:"ticket"`
	OriginalScan   *models.ScanRecord `json:"original_scan,omitempty"`
}

// SyncResult classifies one replayed offline scan. Exactly one of Applied,
// Duplicate and Conflict is true.
type SyncResult struct {
	Applied      bool               `json:"applied"`
	Duplicate    bool               `json:"duplicate"`
	Conflict     bool               `json:"conflict"`
	Ticket       *models.SeatTicket `json:"ticket"`
	OriginalScan *models.ScanRecord `json:"original_scan,omitempty"`
}

// Verify checks a signed payload without changing any state. Used for
// pre-gate spot checks.
func (s *ScanService) Verify(ctx context.Context, qrPayload string) (*VerifyResult, error) {
	claims, err := s.parsePayload(qrPayload)
	if err != nil {
		return nil, err
	}

	ticket, err := s.getSeatTicket(claims.TicketID)
	if err != nil {
		return nil, err
	}

	switch ticket.Status {
	case models.SeatTicketVoid:
		return nil, ErrTicketVoid
	case models.SeatTicketUsed:
		return &VerifyResult{
			Valid:        false,
			Ticket:       ticket,
			AlreadyUsed:  true,
			OriginalScan: scanRecordOf(ticket),
		}, nil
	}

	return &VerifyResult{Valid: true, Ticket: ticket}, nil
}

// Scan admits a ticket at the gate. Re-scanning a used ticket is idempotent
// and reports the original admission instead of failing.
func (s *ScanService) Scan(ctx context.Context, ticketID, deviceID, qrPayload string) (*ScanResult, error) {
	if err := s.checkPayload(ticketID, qrPayload); err != nil {
		return nil, err
	}

	ticket, err := s.getSeatTicket(ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status == models.SeatTicketVoid {
		s.log.LogSecurity("VOID_SCAN", fmt.Sprintf("Void ticket %s presented at device %s", ticketID, deviceID))
		return nil, ErrTicketVoid
	}
	if ticket.Status == models.SeatTicketUsed {
		return s.alreadyScanned(ticket, deviceID), nil
	}

	scannedAt := s.now()
	err = s.store.MarkSeatTicketUsed(ticketID, scannedAt, deviceID)
	if errors.Is(err, storage.ErrConflict) {
		// Another gate won the race; report its admission.
		ticket, err = s.getSeatTicket(ticketID)
		if err != nil {
			return nil, err
		}
		return s.alreadyScanned(ticket, deviceID), nil
	}
	if err != nil {
		return nil, s.mapSeatErr(err, ticketID)
	}

	ticket.Status = models.SeatTicketUsed
	ticket.ScannedAt = &scannedAt
	ticket.ScannedBy = deviceID

	s.log.LogScan("ADMIT", ticketID, fmt.Sprintf("Admitted by device %s", deviceID))
	s.publish("ticket.scanned", ticket, deviceID)

	return &ScanResult{Scanned: true, Ticket: ticket}, nil
}

// SyncOfflineScan replays a scan recorded while the device had no
// connectivity. The client-observed scan time is preserved, not replaced by
// sync time. A ticket already used by the same device is a harmless
// duplicate; used by a different device is a conflict that staff resolve by
// hand, never by timestamp.
func (s *ScanService) SyncOfflineScan(ctx context.Context, req *models.SyncScanRequest) (*SyncResult, error) {
	if err := s.checkPayload(req.TicketID, req.QRPayload); err != nil {
		return nil, err
	}

	ticket, err := s.getSeatTicket(req.TicketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status == models.SeatTicketVoid {
		return nil, ErrTicketVoid
	}

	if ticket.Status == models.SeatTicketUnused {
		err = s.store.MarkSeatTicketUsed(req.TicketID, req.ScannedAt, req.DeviceID)
		if err == nil {
			ticket.Status = models.SeatTicketUsed
			scannedAt := req.ScannedAt
			ticket.ScannedAt = &scannedAt
			ticket.ScannedBy = req.DeviceID

			s.log.LogScan("SYNC_APPLY", req.TicketID, fmt.Sprintf("Offline scan from device %s applied (scanned %s)", req.DeviceID, req.ScannedAt.Format(time.RFC3339)))
			s.publish("ticket.scanned", ticket, req.DeviceID)
			return &SyncResult{Applied: true, Ticket: ticket}, nil
		}
		if !errors.Is(err, storage.ErrConflict) {
			return nil, s.mapSeatErr(err, req.TicketID)
		}
		// Raced with another sync or a live gate; classify against the winner.
		ticket, err = s.getSeatTicket(req.TicketID)
		if err != nil {
			return nil, err
		}
	}

	original := scanRecordOf(ticket)
	if ticket.ScannedBy == req.DeviceID {
		s.log.LogScan("SYNC_DUP", req.TicketID, fmt.Sprintf("Duplicate replay from device %s ignored", req.DeviceID))
		return &SyncResult{Duplicate: true, Ticket: ticket, OriginalScan: original}, nil
	}

	s.log.LogSecurity("SCAN_CONFLICT", fmt.Sprintf("Ticket %s scanned by %s and replayed by %s", req.TicketID, ticket.ScannedBy, req.DeviceID))
	s.publish("scan.conflict", ticket, req.DeviceID)

	return &SyncResult{Conflict: true, Ticket: ticket, OriginalScan: original}, nil
}

// SyncBatch replays a whole device log. The log is deduplicated first so a
// ticket the device recorded several times is applied once, then each report
// goes through the single-scan sync path.
func (s *ScanService) SyncBatch(ctx context.Context, deviceID string, reports []models.BatchScanReport) ([]*SyncResult, error) {
	observed := make([]reconcile.Report, 0, len(reports))
	payloads := make(map[string]string, len(reports))
	for _, r := range reports {
		observed = append(observed, reconcile.Report{
			TicketID:  r.TicketID,
			DeviceID:  deviceID,
			ScannedAt: r.ScannedAt,
		})
		if r.QRPayload != "" {
			payloads[r.TicketID] = r.QRPayload
		}
	}

	deduped := reconcile.Dedupe(observed)
	results := make([]*SyncResult, 0, len(deduped))
	for _, report := range deduped {
		result, err := s.SyncOfflineScan(ctx, &models.SyncScanRequest{
			TicketID:  report.TicketID,
			ScannedAt: report.ScannedAt,
			DeviceID:  deviceID,
			QRPayload: payloads[report.TicketID],
		})
		if err != nil {
			return results, fmt.Errorf("sync of ticket %s failed: %w", report.TicketID, err)
		}
		results = append(results, result)
	}

	s.log.LogScan("SYNC_BATCH", deviceID, fmt.Sprintf("Replayed %d report(s), %d after dedupe", len(reports), len(deduped)))
	return results, nil
}

// TierAvailability reports per-tier remaining capacity for the sales page.
func (s *ScanService) TierAvailability(ctx context.Context) ([]models.TierSummary, error) {
	summaries, err := s.store.ListTierSummary()
	if err != nil {
		return nil, fmt.Errorf("failed to list tiers: %w", err)
	}
	return summaries, nil
}

func (s *ScanService) checkPayload(ticketID, qrPayload string) error {
	if qrPayload == "" {
		if !s.allowUnverified {
			return ErrUnverifiedScan
		}
		s.log.LogSecurity("UNVERIFIED_SCAN", fmt.Sprintf("Ticket %s scanned without a signed payload", ticketID))
		return nil
	}

	claims, err := s.parsePayload(qrPayload)
	if err != nil {
		return err
	}
	if claims.TicketID != ticketID {
		s.log.LogSecurity("PAYLOAD_MISMATCH", fmt.Sprintf("Payload for %s presented against ticket %s", claims.TicketID, ticketID))
		return ErrPayloadMismatch
	}
	return nil
}

func (s *ScanService) parsePayload(qrPayload string) (*qrsign.Claims, error) {
	claims, err := s.codec.Parse(qrPayload)
	if err != nil {
		if errors.Is(err, qrsign.ErrMalformedPayload) {
			return nil, ErrMalformedPayload
		}
		s.log.LogSecurity("BAD_SIGNATURE", "Rejected qr payload with invalid signature")
		return nil, ErrBadSignature
	}
	return claims, nil
}

func (s *ScanService) getSeatTicket(ticketID string) (*models.SeatTicket, error) {
	ticket, err := s.store.GetSeatTicket(ticketID)
	if err != nil {
		return nil, s.mapSeatErr(err, ticketID)
	}
	return ticket, nil
}

func (s *ScanService) alreadyScanned(ticket *models.SeatTicket, deviceID string) *ScanResult {
	s.log.LogScan("DUPLICATE", ticket.TicketID, fmt.Sprintf("Re-scan at device %s, originally admitted by %s", deviceID, ticket.ScannedBy))
	return &ScanResult{
		AlreadyScanned: true,
		Ticket:         ticket,
		OriginalScan:   scanRecordOf(ticket),
	}
}

func (s *ScanService) publish(eventType string, ticket *models.SeatTicket, deviceID string) {
	if err := s.producer.PublishTicketEvent(&models.TicketEvent{
		Type:       eventType,
		TicketID:   ticket.TicketID,
		DeviceID:   deviceID,
		SeatTicket: ticket,
	}); err != nil {
		s.log.Error("KAFKA", fmt.Sprintf("%s event for %s not published: %v", eventType, ticket.TicketID, err))
	}
}

func (s *ScanService) mapSeatErr(err error, ticketID string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return ErrSeatTicketNotFound
	}
	return fmt.Errorf("store error for seat ticket %s: %w", ticketID, err)
}

func scanRecordOf(ticket *models.SeatTicket) *models.ScanRecord {
	if ticket.ScannedAt == nil {
		return nil
	}
	return &models.ScanRecord{ScannedAt: *ticket.ScannedAt, ScannedBy: ticket.ScannedBy}
}
