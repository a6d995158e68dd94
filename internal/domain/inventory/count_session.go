package inventory

import (
	"fmt"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CountSessionStatus represents the lifecycle state of a physical count
type CountSessionStatus string

const (
	CountSessionStatusDraft      CountSessionStatus = "draft"
	CountSessionStatusInProgress CountSessionStatus = "in_progress"
	CountSessionStatusClosed     CountSessionStatus = "closed"
)

// IsValid checks if the status is a valid CountSessionStatus
func (s CountSessionStatus) IsValid() bool {
	switch s {
	case CountSessionStatusDraft, CountSessionStatusInProgress, CountSessionStatusClosed:
		return true
	}
	return false
}

// CanTransitionTo checks if the status can transition to the target status.
// Closed is terminal.
func (s CountSessionStatus) CanTransitionTo(target CountSessionStatus) bool {
	switch s {
	case CountSessionStatusDraft:
		return target == CountSessionStatusInProgress
	case CountSessionStatusInProgress:
		return target == CountSessionStatusClosed
	}
	return false
}

// CountLine records expected vs counted quantity for one (variant, lot) in a session
type CountLine struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey"`
	SessionID   uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_count_line_key,priority:1"`
	VariantID   uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_count_line_key,priority:2"`
	LotID       uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_count_line_key,priority:3"`
	ExpectedQty decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	CountedQty  decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Diff        decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	ReasonCode  string          `gorm:"type:varchar(50)"`
	Note        string          `gorm:"type:text"`
	MovementID  *uuid.UUID      `gorm:"type:uuid"`
	CreatedAt   time.Time       `gorm:"not null"`
	UpdatedAt   time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (CountLine) TableName() string {
	return "count_lines"
}

// HasDifference returns true if the count differs from the expectation
func (l *CountLine) HasDifference() bool {
	return !l.Diff.IsZero()
}

// LotRef returns the lot as an optional reference
func (l *CountLine) LotRef() *uuid.UUID {
	if l.LotID == uuid.Nil {
		return nil
	}
	id := l.LotID
	return &id
}

// AdjustmentNote is the audit note carried by the emitted count adjustment
func (l *CountLine) AdjustmentNote() string {
	return fmt.Sprintf("expected=%s counted=%s diff=%s", l.ExpectedQty.String(), l.CountedQty.String(), l.Diff.String())
}

// CountLineInput is one line submitted for a session. Expected must already be
// resolved by the caller (snapshotted from the balance when omitted).
type CountLineInput struct {
	VariantID   uuid.UUID
	LotID       uuid.UUID
	ExpectedQty decimal.Decimal
	CountedQty  decimal.Decimal
	ReasonCode  string
	Note        string
}

// CountSession scopes a physical count to one location
type CountSession struct {
	shared.CompanyAggregateRoot
	LocationID uuid.UUID          `gorm:"type:uuid;not null;index"`
	Status     CountSessionStatus `gorm:"type:varchar(20);not null;index"`
	OpenedBy   uuid.UUID          `gorm:"type:uuid;not null"`
	OpenedAt   time.Time          `gorm:"not null"`
	ClosedBy   *uuid.UUID         `gorm:"type:uuid"`
	ClosedAt   *time.Time
	Note       string      `gorm:"type:text"`
	Lines      []CountLine `gorm:"foreignKey:SessionID;references:ID"`
}

// TableName returns the table name for GORM
func (CountSession) TableName() string {
	return "count_sessions"
}

// NewCountSession creates a draft count session for a location
func NewCountSession(companyID, locationID, actorID uuid.UUID, note string) (*CountSession, error) {
	if locationID == uuid.Nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Location ID cannot be empty")
	}
	if actorID == uuid.Nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Actor ID cannot be empty")
	}
	return &CountSession{
		CompanyAggregateRoot: shared.NewCompanyAggregateRoot(companyID),
		LocationID:           locationID,
		Status:               CountSessionStatusDraft,
		OpenedBy:             actorID,
		OpenedAt:             time.Now(),
		Note:                 note,
		Lines:                make([]CountLine, 0),
	}, nil
}

// Start moves the session from draft to in_progress
func (s *CountSession) Start() error {
	if !s.Status.CanTransitionTo(CountSessionStatusInProgress) {
		return shared.NewDomainError(shared.CodeInvalidState, "Count session can only be started from draft")
	}
	s.Status = CountSessionStatusInProgress
	s.Touch()
	return nil
}

// IsClosed returns true if the session is closed
func (s *CountSession) IsClosed() bool {
	return s.Status == CountSessionStatusClosed
}

// FindLine returns the line for (variant, lot), or nil
func (s *CountSession) FindLine(variantID, lotID uuid.UUID) *CountLine {
	for i := range s.Lines {
		if s.Lines[i].VariantID == variantID && s.Lines[i].LotID == lotID {
			return &s.Lines[i]
		}
	}
	return nil
}

// RecordLine upserts the line for (variant, lot). A second call for the same
// key replaces the prior values; it never accumulates.
func (s *CountSession) RecordLine(in CountLineInput) (*CountLine, error) {
	if s.IsClosed() {
		return nil, shared.ErrSessionAlreadyClosed
	}
	if s.Status != CountSessionStatusInProgress {
		return nil, shared.NewDomainError(shared.CodeInvalidState, "Count session is not in progress")
	}
	if in.VariantID == uuid.Nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Variant ID cannot be empty")
	}
	if in.CountedQty.IsNegative() {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Counted quantity cannot be negative")
	}
	if !fitsScale(in.CountedQty, QuantityScale) {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Counted quantity has more than 4 decimal places")
	}

	now := time.Now()
	line := s.FindLine(in.VariantID, in.LotID)
	if line == nil {
		s.Lines = append(s.Lines, CountLine{
			ID:        uuid.New(),
			SessionID: s.ID,
			VariantID: in.VariantID,
			LotID:     in.LotID,
			CreatedAt: now,
		})
		line = &s.Lines[len(s.Lines)-1]
	}
	line.ExpectedQty = in.ExpectedQty
	line.CountedQty = in.CountedQty
	line.Diff = in.CountedQty.Sub(in.ExpectedQty)
	line.ReasonCode = in.ReasonCode
	line.Note = in.Note
	line.UpdatedAt = now
	s.Touch()
	return line, nil
}

// Close marks the session closed and returns the lines that need a count
// adjustment. Closing is one-way.
func (s *CountSession) Close(actorID uuid.UUID) ([]*CountLine, error) {
	if s.IsClosed() {
		return nil, shared.ErrSessionAlreadyClosed
	}
	if !s.Status.CanTransitionTo(CountSessionStatusClosed) {
		return nil, shared.NewDomainError(shared.CodeInvalidState, "Count session must be in progress to close")
	}

	var adjust []*CountLine
	for i := range s.Lines {
		if s.Lines[i].HasDifference() {
			adjust = append(adjust, &s.Lines[i])
		}
	}

	now := time.Now()
	s.Status = CountSessionStatusClosed
	s.ClosedBy = &actorID
	s.ClosedAt = &now
	s.Touch()
	s.IncrementVersion()
	return adjust, nil
}

// DifferenceCount returns the number of lines with a non-zero diff
func (s *CountSession) DifferenceCount() int {
	n := 0
	for i := range s.Lines {
		if s.Lines[i].HasDifference() {
			n++
		}
	}
	return n
}
