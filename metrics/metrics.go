package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CartMutations counts cart writes by operation (add, update, remove,
	// clear, merge) and result (ok, rejected, error).
	CartMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_cart_mutations_total",
		Help: "Cart mutations by operation and result.",
	}, []string{"operation", "result"})

	// StockRejections counts mutations refused because the requested quantity
	// exceeded the resolved availability.
	StockRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_cart_stock_rejections_total",
		Help: "Cart mutations rejected for insufficient stock.",
	})

	// ProductWrites counts product create/update operations, which are the
	// paths that run variant sync.
	ProductWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_product_writes_total",
		Help: "Product writes by operation.",
	}, []string{"operation"})
)
