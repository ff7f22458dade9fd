package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/norcalbattery/storefront/internal/models"
)

type mysqlOrderRow struct {
	PrivateID       string          `gorm:"column:id;primaryKey;type:char(36)"`
	OrderID         string          `gorm:"column:order_id;size:40;uniqueIndex"`
	UserID          string          `gorm:"column:user_id;size:128;index"`
	StripeSessionID string          `gorm:"column:stripe_session_id;size:255;uniqueIndex"`
	DeliveryMethod  string          `gorm:"column:delivery_method;size:16"`
	ShippingCost    decimal.Decimal `gorm:"column:shipping_cost;type:decimal(12,2)"`
	Total           decimal.Decimal `gorm:"column:total;type:decimal(12,2)"`
	Status          string          `gorm:"column:status;size:16;index"`
	CustomerEmail   string          `gorm:"column:customer_email;size:320"`
	Carrier         string          `gorm:"column:shipment_carrier;size:64"`
	TrackingNumber  string          `gorm:"column:tracking_number;size:128"`
	CreatedAt       time.Time       `gorm:"column:created_at;index"`
	UpdatedAt       time.Time       `gorm:"column:updated_at"`

	Items   []mysqlOrderItemRow `gorm:"foreignKey:OrderPrivateID;references:PrivateID;constraint:OnDelete:CASCADE"`
	Address *mysqlAddressRow    `gorm:"foreignKey:OrderPrivateID;references:PrivateID;constraint:OnDelete:CASCADE"`
}

func (mysqlOrderRow) TableName() string { return "orders" }

type mysqlOrderItemRow struct {
	ID             uint64          `gorm:"column:id;primaryKey;autoIncrement"`
	OrderPrivateID string          `gorm:"column:order_id;type:char(36);index"`
	Position       int             `gorm:"column:position"`
	ProductID      string          `gorm:"column:product_id;size:64"`
	Name           string          `gorm:"column:name;size:255"`
	Quantity       int             `gorm:"column:quantity"`
	Price          decimal.Decimal `gorm:"column:price;type:decimal(12,2)"`
}

func (mysqlOrderItemRow) TableName() string { return "order_items" }

type mysqlAddressRow struct {
	OrderPrivateID string `gorm:"column:order_id;primaryKey;type:char(36)"`
	Line1          string `gorm:"column:line1;size:255"`
	Line2          string `gorm:"column:line2;size:255"`
	City           string `gorm:"column:city;size:128"`
	State          string `gorm:"column:state;size:64"`
	PostalCode     string `gorm:"column:postal_code;size:32"`
	Country        string `gorm:"column:country;size:64"`
}

func (mysqlAddressRow) TableName() string { return "shipping_addresses" }

// MySQLOrderStore keeps orders in MySQL through gorm.
type MySQLOrderStore struct {
	db  *gorm.DB
	now func() time.Time
}

// OpenMySQL connects with the given DSN and migrates the order tables.
func OpenMySQL(ctx context.Context, dsn string) (*MySQLOrderStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("mysql dsn is required")
	}

	gdb, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect mysql: %w", err)
	}

	store := &MySQLOrderStore{db: gdb, now: time.Now}
	if err := store.Ping(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	if err := gdb.WithContext(ctx).AutoMigrate(&mysqlOrderRow{}, &mysqlOrderItemRow{}, &mysqlAddressRow{}); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("auto migrate failed: %w", err)
	}
	return store, nil
}

func NewMySQLOrderStore(gdb *gorm.DB) *MySQLOrderStore {
	return &MySQLOrderStore{db: gdb, now: time.Now}
}

func (s *MySQLOrderStore) Create(ctx context.Context, order *Order) (*Order, error) {
	record := prepareForCreate(order, s.now())
	row := toMySQLRow(record)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&row).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateSession
		}
		return nil, persistenceError("create", record.StripeSessionID, err)
	}
	return record, nil
}

func (s *MySQLOrderStore) FindByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	return s.first(ctx, "find by id", id.String(), "id = ?", id.String())
}

func (s *MySQLOrderStore) FindByStripeSessionID(ctx context.Context, sessionID string) (*Order, error) {
	return s.first(ctx, "find by session", sessionID, "stripe_session_id = ?", sessionID)
}

func (s *MySQLOrderStore) Update(ctx context.Context, id uuid.UUID, patch OrderPatch) (*Order, error) {
	key := id.String()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The driver reports changed rows, not matched rows, so existence is checked with a locking read.
		var existing mysqlOrderRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id").Where("id = ?", key).Take(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrOrderNotFound
		}
		if err != nil {
			return err
		}

		if err := tx.Model(&mysqlOrderRow{}).Where("id = ?", key).Updates(mysqlOrderUpdates(patch, s.now())).Error; err != nil {
			return err
		}

		if patch.ShippingAddress != nil {
			address := toMySQLAddress(key, patch.ShippingAddress)
			if err := tx.Save(&address).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, persistenceError("update", key, err)
	}
	return s.FindByID(ctx, id)
}

// mysqlOrderUpdates maps a patch onto order columns. updated_at is always written.
func mysqlOrderUpdates(patch OrderPatch, now time.Time) map[string]any {
	updates := map[string]any{"updated_at": now.UTC()}
	if patch.Status != nil {
		updates["status"] = string(*patch.Status)
	}
	if patch.CustomerEmail != nil {
		updates["customer_email"] = *patch.CustomerEmail
	}
	if patch.Shipment != nil {
		updates["shipment_carrier"] = patch.Shipment.Carrier
		updates["tracking_number"] = patch.Shipment.TrackingNumber
	}
	return updates
}

func (s *MySQLOrderStore) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	key := id.String()
	var deleted bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("order_id = ?", key).Delete(&mysqlOrderItemRow{}).Error; err != nil {
			return err
		}
		if err := tx.Where("order_id = ?", key).Delete(&mysqlAddressRow{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", key).Delete(&mysqlOrderRow{})
		if result.Error != nil {
			return result.Error
		}
		deleted = result.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, persistenceError("delete", key, err)
	}
	return deleted, nil
}

func (s *MySQLOrderStore) FindAll(ctx context.Context, limit int) ([]*Order, error) {
	query := s.preloaded(ctx).Order("created_at DESC").Order("order_id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []mysqlOrderRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, persistenceError("find all", "", err)
	}
	return fromMySQLRows(rows)
}

func (s *MySQLOrderStore) FindByUserID(ctx context.Context, userID string, excludeCart bool) ([]*Order, error) {
	query := s.preloaded(ctx).Where("user_id = ?", userID)
	if excludeCart {
		query = query.Where("status <> ?", string(StatusCart))
	}
	var rows []mysqlOrderRow
	if err := query.Order("created_at DESC").Order("order_id DESC").Find(&rows).Error; err != nil {
		return nil, persistenceError("find by user", userID, err)
	}
	return fromMySQLRows(rows)
}

func (s *MySQLOrderStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return persistenceError("ping", "mysql", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return persistenceError("ping", "mysql", err)
	}
	return nil
}

func (s *MySQLOrderStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *MySQLOrderStore) preloaded(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Address")
}

func (s *MySQLOrderStore) first(ctx context.Context, op, key string, where string, args ...any) (*Order, error) {
	var row mysqlOrderRow
	err := s.preloaded(ctx).Where(where, args...).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, persistenceError(op, key, err)
	}
	order, err := fromMySQLRow(row)
	if err != nil {
		return nil, persistenceError(op, key, err)
	}
	return order, nil
}

func toMySQLRow(order *Order) mysqlOrderRow {
	key := order.PrivateID.String()
	row := mysqlOrderRow{
		PrivateID:       key,
		OrderID:         order.OrderID,
		UserID:          order.UserID,
		StripeSessionID: order.StripeSessionID,
		DeliveryMethod:  string(order.DeliveryMethod),
		ShippingCost:    order.ShippingCost,
		Total:           order.Total,
		Status:          string(order.Status),
		CustomerEmail:   order.CustomerEmail,
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
		Items:           make([]mysqlOrderItemRow, 0, len(order.Items)),
	}
	if order.Shipment != nil {
		row.Carrier = order.Shipment.Carrier
		row.TrackingNumber = order.Shipment.TrackingNumber
	}
	for i, item := range order.Items {
		row.Items = append(row.Items, mysqlOrderItemRow{
			OrderPrivateID: key,
			Position:       i,
			ProductID:      item.ProductID,
			Name:           item.Name,
			Quantity:       item.Quantity,
			Price:          item.Price,
		})
	}
	if order.ShippingAddress != nil {
		address := toMySQLAddress(key, order.ShippingAddress)
		row.Address = &address
	}
	return row
}

func toMySQLAddress(key string, address *models.ShippingAddress) mysqlAddressRow {
	return mysqlAddressRow{
		OrderPrivateID: key,
		Line1:          address.Line1,
		Line2:          address.Line2,
		City:           address.City,
		State:          address.State,
		PostalCode:     address.PostalCode,
		Country:        address.Country,
	}
}

func fromMySQLRows(rows []mysqlOrderRow) ([]*Order, error) {
	orders := make([]*Order, 0, len(rows))
	for _, row := range rows {
		order, err := fromMySQLRow(row)
		if err != nil {
			return nil, persistenceError("decode", row.PrivateID, err)
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func fromMySQLRow(row mysqlOrderRow) (*Order, error) {
	privateID, err := uuid.Parse(row.PrivateID)
	if err != nil {
		return nil, fmt.Errorf("invalid private id: %w", err)
	}

	order := &Order{
		PrivateID:       privateID,
		OrderID:         row.OrderID,
		UserID:          row.UserID,
		StripeSessionID: row.StripeSessionID,
		DeliveryMethod:  models.DeliveryMethod(row.DeliveryMethod),
		ShippingCost:    row.ShippingCost,
		Total:           row.Total,
		Status:          models.OrderStatus(row.Status),
		CustomerEmail:   row.CustomerEmail,
		CreatedAt:       row.CreatedAt.UTC(),
		UpdatedAt:       row.UpdatedAt.UTC(),
		Items:           make([]OrderItem, 0, len(row.Items)),
	}
	// A shipment always carries a tracking number.
	if row.TrackingNumber != "" {
		order.Shipment = &models.Shipment{Carrier: row.Carrier, TrackingNumber: row.TrackingNumber}
	}
	for _, item := range row.Items {
		order.Items = append(order.Items, OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     item.Price,
			Quantity:  item.Quantity,
		})
	}
	if row.Address != nil {
		order.ShippingAddress = &models.ShippingAddress{
			Line1:      row.Address.Line1,
			Line2:      row.Address.Line2,
			City:       row.Address.City,
			State:      row.Address.State,
			PostalCode: row.Address.PostalCode,
			Country:    row.Address.Country,
		}
	}
	return order, nil
}
