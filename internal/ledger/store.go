package ledger

import (
	"errors"
	"fmt"
	"time"

	"commodity-market-go/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when a requested row does not exist. Absence is a
// valid outcome for most callers, who map it to an empty/zero default.
var ErrNotFound = errors.New("ledger: not found")

// Store is the durable ledger behind the market, portfolio and margin
// engines. All methods are fallible; callers inside periodic passes log and
// skip rather than abort.
type Store struct {
	db *gorm.DB
}

// NewStore wraps a gorm connection in the repository interface.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Items loads the full item catalog.
func (s *Store) Items() ([]models.Item, error) {
	var items []models.Item
	if err := s.db.Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to load item catalog: %w", err)
	}
	return items, nil
}

// SaveItem persists an item's current pricing state.
func (s *Store) SaveItem(item *models.Item) error {
	err := s.db.Model(&models.Item{}).
		Where("identifier = ?", item.Identifier).
		Updates(map[string]interface{}{
			"price":         item.Price,
			"lifetime_low":  item.LifetimeLow,
			"lifetime_high": item.LifetimeHigh,
			"stock":         item.Stock,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to save item %s: %w", item.Identifier, err)
	}
	return nil
}

// AppendInstant appends one snapshot to an item's time series.
func (s *Store) AppendInstant(instant *models.Instant) error {
	if err := s.db.Create(instant).Error; err != nil {
		return fmt.Errorf("failed to append instant for %s: %w", instant.ItemIdentifier, err)
	}
	return nil
}

// Instants returns the most recent snapshots for an item at a granularity,
// newest first.
func (s *Store) Instants(identifier, granularity string, limit int) ([]models.Instant, error) {
	var instants []models.Instant
	err := s.db.Where("item_identifier = ? AND granularity = ?", identifier, granularity).
		Order("timestamp DESC").
		Limit(limit).
		Find(&instants).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load instants for %s: %w", identifier, err)
	}
	return instants, nil
}

// PurgeHistory drops instants and trades older than the cutoff.
func (s *Store) PurgeHistory(cutoff time.Time) error {
	ts := cutoff.Unix()
	if err := s.db.Where("timestamp < ?", ts).Delete(&models.Instant{}).Error; err != nil {
		return fmt.Errorf("failed to purge instants: %w", err)
	}
	if err := s.db.Where("timestamp < ?", ts).Delete(&models.Trade{}).Error; err != nil {
		return fmt.Errorf("failed to purge trades: %w", err)
	}
	return nil
}

// Portfolio returns a user's holdings as item identifier -> quantity.
// A user with no entries gets an empty map, not an error.
func (s *Store) Portfolio(user uuid.UUID) (map[string]float64, error) {
	var entries []models.PortfolioEntry
	if err := s.db.Where("user_id = ?", user.String()).Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to load portfolio for %s: %w", user, err)
	}
	holdings := make(map[string]float64, len(entries))
	for _, e := range entries {
		holdings[e.ItemIdentifier] = e.Quantity
	}
	return holdings, nil
}

// SetHolding upserts one portfolio entry; a quantity <= 0 removes it.
func (s *Store) SetHolding(user uuid.UUID, identifier string, quantity float64) error {
	if quantity <= 0 {
		err := s.db.Where("user_id = ? AND item_identifier = ?", user.String(), identifier).
			Delete(&models.PortfolioEntry{}).Error
		if err != nil {
			return fmt.Errorf("failed to remove holding %s for %s: %w", identifier, user, err)
		}
		return nil
	}
	entry := models.PortfolioEntry{
		UserID:         user.String(),
		ItemIdentifier: identifier,
		Quantity:       quantity,
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "item_identifier"}},
		DoUpdates: clause.AssignmentColumns([]string{"quantity", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("failed to set holding %s for %s: %w", identifier, user, err)
	}
	return nil
}

// PortfolioUsers returns every user holding at least one item.
func (s *Store) PortfolioUsers() ([]uuid.UUID, error) {
	var ids []string
	err := s.db.Model(&models.PortfolioEntry{}).
		Distinct("user_id").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolio users: %w", err)
	}
	users := make([]uuid.UUID, 0, len(ids))
	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		users = append(users, id)
	}
	return users, nil
}

// DayNumber converts a wall-clock time to the day index used by worth
// snapshots and flow aggregates.
func DayNumber(t time.Time) int {
	return int(t.Unix() / 86400)
}

// AppendTrade writes one immutable trade record.
func (s *Store) AppendTrade(trade *models.Trade) error {
	if err := s.db.Create(trade).Error; err != nil {
		return fmt.Errorf("failed to append trade: %w", err)
	}
	return nil
}

// RecentTrades returns the newest trades, most recent first.
func (s *Store) RecentTrades(limit int) ([]models.Trade, error) {
	var trades []models.Trade
	if err := s.db.Order("timestamp DESC").Limit(limit).Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("failed to load recent trades: %w", err)
	}
	return trades, nil
}

// TradesForUser pages through one user's trade history, newest first.
func (s *Store) TradesForUser(user uuid.UUID, offset, limit int) ([]models.Trade, error) {
	var trades []models.Trade
	err := s.db.Where("user_id = ?", user.String()).
		Order("timestamp DESC").
		Offset(offset).
		Limit(limit).
		Find(&trades).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load trades for %s: %w", user, err)
	}
	return trades, nil
}

// Debt returns a user's outstanding debt; a user without a ledger row owes
// zero.
func (s *Store) Debt(user uuid.UUID) (float64, error) {
	var entry models.DebtEntry
	err := s.db.Where("user_id = ?", user.String()).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load debt for %s: %w", user, err)
	}
	return entry.Debt, nil
}

// InterestPaid returns a user's lifetime interest paid.
func (s *Store) InterestPaid(user uuid.UUID) (float64, error) {
	var entry models.DebtEntry
	err := s.db.Where("user_id = ?", user.String()).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load interest paid for %s: %w", user, err)
	}
	return entry.InterestPaid, nil
}

// IncreaseDebt adds to a user's debt, creating the ledger row on first loan.
func (s *Store) IncreaseDebt(user uuid.UUID, amount float64) error {
	entry := models.DebtEntry{UserID: user.String()}
	if err := s.db.FirstOrCreate(&entry, models.DebtEntry{UserID: user.String()}).Error; err != nil {
		return fmt.Errorf("failed to load debt row for %s: %w", user, err)
	}
	err := s.db.Model(&entry).Update("debt", gorm.Expr("debt + ?", amount)).Error
	if err != nil {
		return fmt.Errorf("failed to increase debt for %s: %w", user, err)
	}
	return nil
}

// DecreaseDebt subtracts from a user's debt, clamped at zero. The row is
// kept once created.
func (s *Store) DecreaseDebt(user uuid.UUID, amount float64) error {
	err := s.db.Model(&models.DebtEntry{}).
		Where("user_id = ?", user.String()).
		Update("debt", gorm.Expr("MAX(debt - ?, 0)", amount)).Error
	if err != nil {
		return fmt.Errorf("failed to decrease debt for %s: %w", user, err)
	}
	return nil
}

// AddInterestPaid adds to a user's lifetime interest paid. The value only
// ever grows.
func (s *Store) AddInterestPaid(user uuid.UUID, amount float64) error {
	err := s.db.Model(&models.DebtEntry{}).
		Where("user_id = ?", user.String()).
		Update("interest_paid", gorm.Expr("interest_paid + ?", amount)).Error
	if err != nil {
		return fmt.Errorf("failed to add interest paid for %s: %w", user, err)
	}
	return nil
}

// AllDebtors returns every user with outstanding debt > 0.
func (s *Store) AllDebtors() (map[uuid.UUID]float64, error) {
	var entries []models.DebtEntry
	if err := s.db.Where("debt > 0").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to load debtors: %w", err)
	}
	debtors := make(map[uuid.UUID]float64, len(entries))
	for _, e := range entries {
		id, err := uuid.Parse(e.UserID)
		if err != nil {
			// Malformed row: skip it rather than poison the whole pass.
			continue
		}
		debtors[id] = e.Debt
	}
	return debtors, nil
}

// TotalOutstandingDebt sums debt across all users.
func (s *Store) TotalOutstandingDebt() (float64, error) {
	var total float64
	err := s.db.Model(&models.DebtEntry{}).
		Select("COALESCE(SUM(debt), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum outstanding debt: %w", err)
	}
	return total, nil
}

// TotalInterestPaid sums lifetime interest paid across all users.
func (s *Store) TotalInterestPaid() (float64, error) {
	var total float64
	err := s.db.Model(&models.DebtEntry{}).
		Select("COALESCE(SUM(interest_paid), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum interest paid: %w", err)
	}
	return total, nil
}

// SaveWorth upserts a user's portfolio worth for a day.
func (s *Store) SaveWorth(user uuid.UUID, day int, worth float64) error {
	snapshot := models.WorthSnapshot{
		UserID: user.String(),
		Day:    day,
		Worth:  worth,
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "day"}},
		DoUpdates: clause.AssignmentColumns([]string{"worth", "updated_at"}),
	}).Create(&snapshot).Error
	if err != nil {
		return fmt.Errorf("failed to save worth for %s: %w", user, err)
	}
	return nil
}

// SaveCPI records one consumer price index value.
func (s *Store) SaveCPI(value float64) error {
	snapshot := models.CPISnapshot{Timestamp: time.Now().Unix(), Value: value}
	if err := s.db.Create(&snapshot).Error; err != nil {
		return fmt.Errorf("failed to save CPI value: %w", err)
	}
	return nil
}

// CPIHistory returns recorded CPI values, newest first.
func (s *Store) CPIHistory(limit int) ([]models.CPISnapshot, error) {
	var snapshots []models.CPISnapshot
	if err := s.db.Order("timestamp DESC").Limit(limit).Find(&snapshots).Error; err != nil {
		return nil, fmt.Errorf("failed to load CPI history: %w", err)
	}
	return snapshots, nil
}

// AddDayFlow accumulates traded flow and collected taxes into the day's
// aggregate row.
func (s *Store) AddDayFlow(day int, flow, taxes float64) error {
	row := models.DayFlow{Day: day}
	if err := s.db.FirstOrCreate(&row, models.DayFlow{Day: day}).Error; err != nil {
		return fmt.Errorf("failed to load day flow row: %w", err)
	}
	err := s.db.Model(&row).Updates(map[string]interface{}{
		"flow":  gorm.Expr("flow + ?", flow),
		"taxes": gorm.Expr("taxes + ?", taxes),
	}).Error
	if err != nil {
		return fmt.Errorf("failed to update day flow: %w", err)
	}
	return nil
}

// OpenOrders returns all standing limit orders for an item.
func (s *Store) OpenOrders(identifier string) ([]models.LimitOrder, error) {
	var orders []models.LimitOrder
	if err := s.db.Where("item_identifier = ?", identifier).Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to load orders for %s: %w", identifier, err)
	}
	return orders, nil
}

// SaveOrder creates a new limit order.
func (s *Store) SaveOrder(order *models.LimitOrder) error {
	if err := s.db.Create(order).Error; err != nil {
		return fmt.Errorf("failed to save limit order: %w", err)
	}
	return nil
}

// UpdateOrder persists fill progress on a limit order.
func (s *Store) UpdateOrder(order *models.LimitOrder) error {
	if err := s.db.Save(order).Error; err != nil {
		return fmt.Errorf("failed to update limit order %d: %w", order.ID, err)
	}
	return nil
}

// DeleteOrder removes a completed order.
func (s *Store) DeleteOrder(order *models.LimitOrder) error {
	if err := s.db.Delete(order).Error; err != nil {
		return fmt.Errorf("failed to delete limit order %d: %w", order.ID, err)
	}
	return nil
}

// PurgeExpiredOrders drops orders whose expiration has passed.
func (s *Store) PurgeExpiredOrders(now time.Time) error {
	err := s.db.Where("expires_at > 0 AND expires_at < ?", now.Unix()).
		Delete(&models.LimitOrder{}).Error
	if err != nil {
		return fmt.Errorf("failed to purge expired orders: %w", err)
	}
	return nil
}
