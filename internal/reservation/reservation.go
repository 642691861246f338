// Package reservation implements the in-memory booking backend: seat
// accounting, business-hour and holiday checks, and lookup/cancel by
// the caller's name. It satisfies the dialogue layer's Bookings
// contract.
package reservation

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kaiwa-ai/uketsuke/internal/dialogue"
)

// Business rules of the shop.
const (
	MaxSeats = 50

	// Two service windows per day; the kitchen closes between lunch and
	// dinner.
	LunchOpen   = 11 * 60
	LunchClose  = 15 * 60
	DinnerOpen  = 17 * 60
	DinnerClose = 23 * 60
)

// Holiday is the weekly closing day.
const Holiday = time.Wednesday

// Booking is one active reservation.
type Booking struct {
	ID          string
	Name        string
	Date        string // MM/DD
	Time        string // HH:MM
	PersonCount int
	CreatedAt   time.Time
}

// Manager owns the booking table. Safe for concurrent use.
type Manager struct {
	log *slog.Logger
	now func() time.Time

	mu       sync.Mutex
	bookings map[string]Booking
	nextID   int
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// WithClock overrides the wall clock, used by tests for deterministic
// holiday resolution.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager builds an empty booking table.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		log:      slog.Default(),
		now:      time.Now,
		bookings: map[string]Booking{},
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

var _ dialogue.Bookings = (*Manager)(nil)

// Create validates and stores a booking from a filled slot map. The
// returned code selects the response template: COMPLETE, HOLIDAY,
// INVALID_TIME or FULL.
func (m *Manager) Create(_ context.Context, slots map[string]string) (string, error) {
	date := slots[dialogue.SlotDate]
	timeStr := slots[dialogue.SlotTime]
	name := slots[dialogue.SlotName]
	count, err := parsePersonCount(slots[dialogue.SlotPersonCount])
	if err != nil {
		return "", fmt.Errorf("reservation: %w", err)
	}

	day, err := m.resolveDate(date)
	if err != nil {
		return "", fmt.Errorf("reservation: %w", err)
	}
	if day.Weekday() == Holiday {
		m.log.Info("booking refused on holiday", "date", date)
		return dialogue.ResponseHoliday, nil
	}
	if !withinBusinessHours(timeStr) {
		m.log.Info("booking refused outside business hours", "time", timeStr)
		return dialogue.ResponseInvalidTime, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.occupiedLocked(date, timeStr)+count > MaxSeats {
		m.log.Info("booking refused, full", "date", date, "time", timeStr, "count", count)
		return dialogue.ResponseFull, nil
	}

	m.nextID++
	b := Booking{
		ID:          strconv.Itoa(m.nextID),
		Name:        name,
		Date:        date,
		Time:        timeStr,
		PersonCount: count,
		CreatedAt:   m.now(),
	}
	m.bookings[b.ID] = b
	m.log.Info("booking created", "id", b.ID, "name", name, "date", date, "time", timeStr, "count", count)
	return dialogue.ResponseComplete, nil
}

// Find returns the newest active booking for a name as a slot map.
func (m *Manager) Find(_ context.Context, name string) (map[string]string, bool, error) {
	if name == "" {
		return nil, false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var found *Booking
	for id := range m.bookings {
		b := m.bookings[id]
		if b.Name != name {
			continue
		}
		if found == nil || b.CreatedAt.After(found.CreatedAt) {
			found = &b
		}
	}
	if found == nil {
		return nil, false, nil
	}
	return map[string]string{
		dialogue.SlotDate:        found.Date,
		dialogue.SlotTime:        found.Time,
		dialogue.SlotPersonCount: strconv.Itoa(found.PersonCount),
		dialogue.SlotName:        found.Name,
	}, true, nil
}

// Cancel removes every active booking under the name.
func (m *Manager) Cancel(_ context.Context, name string) (bool, error) {
	if name == "" {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cancelled := false
	for id, b := range m.bookings {
		if b.Name == name {
			delete(m.bookings, id)
			cancelled = true
		}
	}
	if cancelled {
		m.log.Info("bookings cancelled", "name", name)
	}
	return cancelled, nil
}

// Active returns the number of stored bookings.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.bookings)
}

func (m *Manager) occupiedLocked(date, timeStr string) int {
	total := 0
	for _, b := range m.bookings {
		if b.Date == date && b.Time == timeStr {
			total += b.PersonCount
		}
	}
	return total
}

// resolveDate turns "MM/DD" into a concrete day, rolling into next
// year when the date already passed.
func (m *Manager) resolveDate(date string) (time.Time, error) {
	parts := strings.Split(date, "/")
	if len(parts) != 2 {
		return time.Time{}, fmt.Errorf("bad date %q", date)
	}
	month, err1 := strconv.Atoi(parts[0])
	day, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return time.Time{}, fmt.Errorf("bad date %q", date)
	}

	today := m.now()
	resolved := time.Date(today.Year(), time.Month(month), day, 0, 0, 0, 0, today.Location())
	if resolved.Before(today.Truncate(24 * time.Hour)) {
		resolved = resolved.AddDate(1, 0, 0)
	}
	if int(resolved.Month()) != month || resolved.Day() != day {
		return time.Time{}, fmt.Errorf("bad date %q", date)
	}
	return resolved, nil
}

func withinBusinessHours(timeStr string) bool {
	parts := strings.Split(timeStr, ":")
	if len(parts) != 2 {
		return false
	}
	hour, err1 := strconv.Atoi(parts[0])
	minute, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || hour > 23 || minute > 59 {
		return false
	}
	at := hour*60 + minute
	return (at >= LunchOpen && at <= LunchClose) || (at >= DinnerOpen && at <= DinnerClose)
}

func parsePersonCount(value string) (int, error) {
	digits := strings.TrimRight(value, "人名")
	count, err := strconv.Atoi(digits)
	if err != nil || count <= 0 {
		return 0, fmt.Errorf("bad person count %q", value)
	}
	return count, nil
}
