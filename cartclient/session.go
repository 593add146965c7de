package cartclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/craftsmandu/storefront-backend-go/models"
)

// State is the session's storage strategy. There are only two: an anonymous
// session writes the local store, an authenticated one writes the server.
type State int

const (
	Anonymous State = iota
	Authenticated
)

const defaultDebounce = 500 * time.Millisecond

// SyncError is a transient failure during an optimistic remote write. The
// local cart has already been rolled back to its pre-mutation snapshot when
// one of these is reported.
type SyncError struct {
	Op     string
	ItemID string
	Err    error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("cart sync (%s, item %s): %v", e.Op, e.ItemID, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// Option configures a Session.
type Option func(*Session)

// WithDebounce overrides the per-item quantity debounce window.
func WithDebounce(d time.Duration) Option {
	return func(s *Session) { s.debounce = d }
}

// WithSyncErrorHandler installs the callback invoked when a deferred quantity
// persist fails after its debounce window. The cart has been reverted by the
// time it runs.
func WithSyncErrorHandler(fn func(itemID string, err error)) Option {
	return func(s *Session) { s.onSyncError = fn }
}

// pendingWrite tracks one item's debounced quantity persist. The snapshot is
// the quantity before the first optimistic update of the window, so a failed
// persist rolls all coalesced increments back at once.
type pendingWrite struct {
	timer        *time.Timer
	prevQuantity int
}

// Session owns one shopper's cart state. Construct it at session start with
// NewSession, drive every cart mutation through it, and Close it on teardown.
type Session struct {
	api   *Client
	store LocalStore

	debounce    time.Duration
	onSyncError func(itemID string, err error)

	mu      sync.Mutex
	state   State
	cart    Cart
	pending map[string]*pendingWrite
	closed  bool
}

// NewSession starts an anonymous session, restoring any guest cart found in
// the local store. A corrupt stored cart is discarded rather than failing the
// session.
func NewSession(api *Client, store LocalStore, opts ...Option) *Session {
	s := &Session{
		api:      api,
		store:    store,
		debounce: defaultDebounce,
		state:    Anonymous,
		cart:     Cart{Items: []Item{}},
		pending:  make(map[string]*pendingWrite),
	}
	for _, opt := range opts {
		opt(s)
	}

	if data, err := store.Load(); err != nil {
		log.Println("cart: failed to load guest cart:", err)
	} else if len(data) > 0 {
		var cart Cart
		if err := json.Unmarshal(data, &cart); err != nil {
			log.Println("cart: discarding corrupt guest cart:", err)
		} else if cart.Items != nil {
			s.cart = cart
		}
	}
	return s
}

// State returns the current storage strategy.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Cart returns a copy of the current cart.
func (s *Session) Cart() Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]Item, len(s.cart.Items))
	copy(items, s.cart.Items)
	return Cart{Items: items}
}

// Total sums unit price × quantity over all lines, preferring the snapshot
// taken at add time and falling back to the live product price.
func (s *Session) Total() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0.0
	for i := range s.cart.Items {
		it := &s.cart.Items[i]
		var price float64
		switch {
		case it.Price != nil:
			price = *it.Price
		case it.Product != nil:
			v := it.Product.ResolveVariant(models.VariantSelector{Size: it.Size, Color: it.Color})
			price = it.Product.EffectivePrice(v)
		}
		total += price * float64(it.Quantity)
	}
	return total
}

// Count sums quantities over all lines.
func (s *Session) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for i := range s.cart.Items {
		count += s.cart.Items[i].Quantity
	}
	return count
}

func (s *Session) itemIndex(itemID string) int {
	for i := range s.cart.Items {
		if s.cart.Items[i].ID == itemID {
			return i
		}
	}
	return -1
}

// saveLocal persists the guest cart. Callers hold s.mu.
func (s *Session) saveLocal() {
	data, err := json.Marshal(s.cart)
	if err != nil {
		log.Println("cart: failed to serialize guest cart:", err)
		return
	}
	if err := s.store.Save(data); err != nil {
		log.Println("cart: failed to persist guest cart:", err)
	}
}

// Add puts quantity units of a (product, size, color) triple into the cart.
// An already-present triple has its quantity incremented and its price
// snapshot refreshed; the stock check always covers the post-add total.
func (s *Session) Add(ctx context.Context, productID string, quantity int, size, color string) error {
	if quantity < 1 {
		return &models.ValidationError{Field: "quantity", Message: "must be at least 1"}
	}

	s.mu.Lock()
	authenticated := s.state == Authenticated
	s.mu.Unlock()

	if authenticated {
		cart, err := s.api.AddItem(ctx, productID, quantity, size, color)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.cart = *cart
		s.mu.Unlock()
		return nil
	}

	// Guest path validates against live product data before committing.
	product, err := s.api.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	variant := product.ResolveVariant(models.VariantSelector{Size: size, Color: color})
	available := product.EffectiveStock(variant)
	price := product.EffectivePrice(variant)

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.cart.Items {
		it := &s.cart.Items[i]
		if it.ProductID == productID && it.Size == size && it.Color == color {
			newQuantity := it.Quantity + quantity
			if available < newQuantity {
				return &models.InsufficientStockError{ProductID: productID, Requested: newQuantity, Available: available}
			}
			it.Quantity = newQuantity
			it.Price = &price
			it.Product = product
			s.saveLocal()
			return nil
		}
	}

	if available < quantity {
		return &models.InsufficientStockError{ProductID: productID, Requested: quantity, Available: available}
	}
	s.cart.Items = append(s.cart.Items, Item{
		ID:        uuid.NewString(),
		ProductID: productID,
		Quantity:  quantity,
		Size:      size,
		Color:     color,
		Price:     &price,
		Product:   product,
	})
	s.saveLocal()
	return nil
}

// UpdateQuantity applies an absolute quantity to one line immediately, then
// persists it. For authenticated sessions the persist is deferred by the
// per-item debounce window so rapid repeated changes coalesce into a single
// write carrying only the final quantity; if that write fails the line is
// rolled back to its pre-update quantity and the sync error handler runs.
func (s *Session) UpdateQuantity(ctx context.Context, itemID string, quantity int) error {
	if quantity < 1 {
		return &models.ValidationError{Field: "quantity", Message: "must be at least 1"}
	}

	s.mu.Lock()
	idx := s.itemIndex(itemID)
	if idx < 0 {
		s.mu.Unlock()
		return models.ErrNotFound
	}

	if s.state == Anonymous {
		item := &s.cart.Items[idx]
		productID, size, color := item.ProductID, item.Size, item.Color
		s.mu.Unlock()

		product, err := s.api.GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		variant := product.ResolveVariant(models.VariantSelector{Size: size, Color: color})
		if available := product.EffectiveStock(variant); available < quantity {
			return &models.InsufficientStockError{ProductID: productID, Requested: quantity, Available: available}
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if idx = s.itemIndex(itemID); idx < 0 {
			return models.ErrNotFound
		}
		s.cart.Items[idx].Quantity = quantity
		s.saveLocal()
		return nil
	}

	defer s.mu.Unlock()

	// Optimistic local update; the snapshot for rollback is the quantity
	// before the first update of the debounce window.
	entry, ok := s.pending[itemID]
	if ok {
		entry.timer.Stop()
	} else {
		entry = &pendingWrite{prevQuantity: s.cart.Items[idx].Quantity}
		s.pending[itemID] = entry
	}
	s.cart.Items[idx].Quantity = quantity

	entry.timer = time.AfterFunc(s.debounce, func() {
		s.flushQuantity(itemID)
	})
	return nil
}

// flushQuantity runs when an item's debounce window elapses: it sends the
// final quantity to the server and reverts on failure.
func (s *Session) flushQuantity(itemID string) {
	s.mu.Lock()
	entry, ok := s.pending[itemID]
	if !ok || s.closed {
		s.mu.Unlock()
		return
	}
	delete(s.pending, itemID)

	idx := s.itemIndex(itemID)
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	quantity := s.cart.Items[idx].Quantity
	snapshot := entry.prevQuantity
	s.mu.Unlock()

	if _, err := s.api.UpdateQuantity(context.Background(), itemID, quantity); err != nil {
		s.mu.Lock()
		if idx := s.itemIndex(itemID); idx >= 0 {
			s.cart.Items[idx].Quantity = snapshot
		}
		s.mu.Unlock()
		if s.onSyncError != nil {
			s.onSyncError(itemID, &SyncError{Op: "update", ItemID: itemID, Err: err})
		}
	}
}

// Remove deletes one line optimistically. An authenticated session issues the
// remote delete immediately and restores the line if it fails.
func (s *Session) Remove(ctx context.Context, itemID string) error {
	s.mu.Lock()
	idx := s.itemIndex(itemID)
	if idx < 0 {
		s.mu.Unlock()
		return models.ErrNotFound
	}
	removed := s.cart.Items[idx]
	s.cart.Items = append(s.cart.Items[:idx], s.cart.Items[idx+1:]...)
	s.cancelPending(itemID)

	if s.state == Anonymous {
		s.saveLocal()
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if _, err := s.api.RemoveItem(ctx, itemID); err != nil {
		s.mu.Lock()
		if idx > len(s.cart.Items) {
			idx = len(s.cart.Items)
		}
		s.cart.Items = append(s.cart.Items[:idx], append([]Item{removed}, s.cart.Items[idx:]...)...)
		s.mu.Unlock()
		return &SyncError{Op: "remove", ItemID: itemID, Err: err}
	}
	return nil
}

// RemoveMany deletes several lines, issuing the remote deletes concurrently.
// If any individual delete fails the engine does not guess which ones landed;
// it re-fetches the authoritative server cart to resynchronize.
func (s *Session) RemoveMany(ctx context.Context, itemIDs []string) error {
	s.mu.Lock()
	for _, id := range itemIDs {
		if idx := s.itemIndex(id); idx >= 0 {
			s.cart.Items = append(s.cart.Items[:idx], s.cart.Items[idx+1:]...)
		}
		s.cancelPending(id)
	}
	if s.state == Anonymous {
		s.saveLocal()
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	errs := make([]error, len(itemIDs))
	for i, id := range itemIDs {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = s.api.RemoveItem(ctx, id)
		}(i, id)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			if cart, ferr := s.api.GetCart(ctx); ferr == nil {
				s.mu.Lock()
				s.cart = *cart
				s.mu.Unlock()
			}
			return &SyncError{Op: "remove", ItemID: itemIDs[i], Err: err}
		}
	}
	return nil
}

// Clear empties the cart. A missing server-side cart counts as already
// cleared; only a transport failure is reported, and then the local cart is
// left untouched.
func (s *Session) Clear(ctx context.Context) error {
	s.mu.Lock()
	authenticated := s.state == Authenticated
	s.mu.Unlock()

	if authenticated {
		if err := s.api.ClearCart(ctx); err != nil {
			return &SyncError{Op: "clear", Err: err}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cart = Cart{Items: []Item{}}
	s.cancelAllPending()
	if !authenticated {
		if err := s.store.Clear(); err != nil {
			log.Println("cart: failed to clear guest store:", err)
		}
	}
	return nil
}

// Login switches the session to the authenticated state and performs the
// one-time merge of a non-empty guest cart into the user's server cart. The
// merge is additive against whatever the server already holds. If the merge
// call fails the engine falls back to fetching the existing server cart and
// the guest lines are dropped.
func (s *Session) Login(ctx context.Context, token string) error {
	s.mu.Lock()
	if s.state == Authenticated {
		s.mu.Unlock()
		return nil
	}
	s.state = Authenticated
	guestItems := make([]Item, len(s.cart.Items))
	copy(guestItems, s.cart.Items)
	s.cancelAllPending()
	s.mu.Unlock()

	s.api.SetToken(token)

	if len(guestItems) == 0 {
		cart, err := s.api.GetCart(ctx)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.cart = *cart
		s.mu.Unlock()
		return nil
	}

	merge := make([]MergeItem, 0, len(guestItems))
	for _, it := range guestItems {
		merge = append(merge, MergeItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Size:      it.Size,
			Color:     it.Color,
		})
	}

	cart, err := s.api.MergeCart(ctx, merge)
	if err != nil {
		log.Println("cart: merge failed, falling back to server cart:", err)
		cart, err = s.api.GetCart(ctx)
		if err != nil {
			s.mu.Lock()
			s.cart = Cart{Items: []Item{}}
			s.mu.Unlock()
			s.clearStore()
			return err
		}
	}

	s.mu.Lock()
	s.cart = *cart
	s.mu.Unlock()
	s.clearStore()
	return nil
}

// Logout returns the session to the anonymous state with an empty cart.
func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Anonymous
	s.cart = Cart{Items: []Item{}}
	s.cancelAllPending()
	s.api.SetToken("")
}

// Close cancels all pending debounce timers. Unflushed quantity writes are
// dropped; the server keeps its last confirmed state.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.cancelAllPending()
}

func (s *Session) clearStore() {
	if err := s.store.Clear(); err != nil {
		log.Println("cart: failed to clear guest store:", err)
	}
}

// cancelPending stops one item's debounce timer. Callers hold s.mu.
func (s *Session) cancelPending(itemID string) {
	if entry, ok := s.pending[itemID]; ok {
		entry.timer.Stop()
		delete(s.pending, itemID)
	}
}

// cancelAllPending stops every debounce timer. Callers hold s.mu.
func (s *Session) cancelAllPending() {
	for id, entry := range s.pending {
		entry.timer.Stop()
		delete(s.pending, id)
	}
}
