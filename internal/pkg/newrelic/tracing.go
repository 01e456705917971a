package newrelic

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/newrelic/go-agent/v3/newrelic"
)

// FromEchoContext extracts the transaction started by the HTTP middleware
func FromEchoContext(c echo.Context) *newrelic.Transaction {
	return newrelic.FromContext(c.Request().Context())
}

// FromContext extracts New Relic transaction from standard context
func FromContext(ctx context.Context) *newrelic.Transaction {
	return newrelic.FromContext(ctx)
}

// StartSegment creates a new segment for the given transaction.
// Returns nil if transaction is not available.
func StartSegment(txn *newrelic.Transaction, name string) *newrelic.Segment {
	if txn == nil {
		return nil
	}
	return txn.StartSegment(name)
}

// SetTransactionName sets the name of the transaction for better visibility
func SetTransactionName(txn *newrelic.Transaction, name string) {
	if txn != nil {
		txn.SetName(name)
	}
}

// AddTransactionAttribute adds a custom attribute to the transaction
func AddTransactionAttribute(txn *newrelic.Transaction, key string, value interface{}) {
	if txn != nil {
		txn.AddAttribute(key, value)
	}
}

// NoticeTransactionError reports an error to New Relic
func NoticeTransactionError(txn *newrelic.Transaction, err error) {
	if txn != nil && err != nil {
		txn.NoticeError(err)
	}
}

// WithSegment executes fn within a named segment of the context's transaction
func WithSegment(ctx context.Context, segmentName string, fn func() error) error {
	segment := StartSegment(FromContext(ctx), segmentName)
	if segment != nil {
		defer segment.End()
	}
	return fn()
}

// StartDatastoreSegment times a store call. End must be called on the
// returned segment; it is safe on a nil transaction.
func StartDatastoreSegment(ctx context.Context, product newrelic.DatastoreProduct, collection, operation string) *newrelic.DatastoreSegment {
	return &newrelic.DatastoreSegment{
		StartTime:  FromContext(ctx).StartSegmentNow(),
		Product:    product,
		Collection: collection,
		Operation:  operation,
	}
}

// StartBackgroundTransaction starts a non-web transaction, such as a bus
// message, and returns a context carrying it. app may be nil.
func StartBackgroundTransaction(ctx context.Context, app *newrelic.Application, name string) (context.Context, *newrelic.Transaction) {
	if app == nil {
		return ctx, nil
	}
	txn := app.StartTransaction(name)
	return newrelic.NewContext(ctx, txn), txn
}
