package main

import (
	"hash/fnv"
	"os"

	"github.com/atolpos/atolpos/internal/clock"
	"github.com/atolpos/atolpos/internal/config"
	"github.com/atolpos/atolpos/internal/inventory"
	"github.com/atolpos/atolpos/internal/liveevents"
	"github.com/atolpos/atolpos/internal/logger"
	"github.com/atolpos/atolpos/internal/loyalty"
	"github.com/atolpos/atolpos/internal/migration"
	"github.com/atolpos/atolpos/internal/observability/metrics"
	"github.com/atolpos/atolpos/internal/order"
	"github.com/atolpos/atolpos/internal/payment"
	"github.com/atolpos/atolpos/internal/printing"
	"github.com/atolpos/atolpos/internal/promotion"
	"github.com/atolpos/atolpos/internal/server"
	"github.com/atolpos/atolpos/internal/sweeper"
	"github.com/atolpos/atolpos/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		clock.Module,
		fx.Provide(newSnowflakeNode),
		db.Module,
		metrics.Module,
		migration.Module,

		liveevents.Module,
		inventory.Module,
		order.Module,
		promotion.Module,
		loyalty.Module,
		printing.Module,
		payment.Module,
		sweeper.Module,

		server.Module,
	)
	app.Run()
}

// newSnowflakeNode derives the node id from the hostname so replicas do
// not mint colliding ids.
func newSnowflakeNode() (*snowflake.Node, error) {
	host, err := os.Hostname()
	if err != nil {
		host = "atolpos"
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(host))
	return snowflake.NewNode(int64(h.Sum32() % 1024))
}
