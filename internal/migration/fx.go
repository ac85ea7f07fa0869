package migration

import (
	loyaltydomain "github.com/atolpos/atolpos/internal/loyalty/domain"
	orderdomain "github.com/atolpos/atolpos/internal/order/domain"
	paymentdomain "github.com/atolpos/atolpos/internal/payment/domain"
	printingdomain "github.com/atolpos/atolpos/internal/printing/domain"
	promodomain "github.com/atolpos/atolpos/internal/promotion/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB) error {
		if conn.Name() != "postgres" {
			// dev and test databases have no migration history; let gorm
			// derive the schema from the models
			return conn.AutoMigrate(
				&orderdomain.Order{},
				&orderdomain.OrderItem{},
				&orderdomain.OrderCounter{},
				&promodomain.Promotion{},
				&promodomain.OrderPromotion{},
				&promodomain.PromotionRedemption{},
				&loyaltydomain.Account{},
				&loyaltydomain.LedgerEntry{},
				&loyaltydomain.Hold{},
				&paymentdomain.Payment{},
				&paymentdomain.PaymentAttempt{},
				&paymentdomain.WebhookLog{},
				&printingdomain.Printer{},
				&printingdomain.PrintJob{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
