package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/craftsmandu/storefront-backend-go/config"
	"github.com/craftsmandu/storefront-backend-go/database"
	"github.com/craftsmandu/storefront-backend-go/models"
)

// setupTest connects to a throwaway database, skipping when no MongoDB is
// reachable.
func setupTest(t *testing.T) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	uri := config.GetEnv("MONGODB_URI", "mongodb://localhost:27017")
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err == nil {
		err = client.Ping(ctx, nil)
	}
	if err != nil {
		t.Skipf("MongoDB not available at %s: %v", uri, err)
	}

	dbName := "storefront_test_" + primitive.NewObjectID().Hex()
	database.DB = client.Database(dbName)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = database.DB.Drop(ctx)
		_ = client.Disconnect(ctx)
	})
}

func insertProduct(t *testing.T, p *models.Product) primitive.ObjectID {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	p.IsActive = true
	if _, err := database.DB.Collection("products").InsertOne(ctx, p); err != nil {
		t.Fatalf("insert product: %v", err)
	}
	return p.ID
}

// newContext builds an echo context with the authenticated user pre-set, the
// way the auth middleware would leave it.
func newContext(t *testing.T, method, path, body string, userID primitive.ObjectID) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("userID", userID)
	return c, rec
}

func decodeCart(t *testing.T, rec *httptest.ResponseRecorder) models.Cart {
	t.Helper()
	var cart models.Cart
	if err := json.Unmarshal(rec.Body.Bytes(), &cart); err != nil {
		t.Fatalf("decode cart: %v (%s)", err, rec.Body.String())
	}
	return cart
}

func TestAddToCart(t *testing.T) {
	setupTest(t)
	userID := primitive.NewObjectID()
	productID := insertProduct(t, &models.Product{Name: "Singing Bowl", Price: 100, Stock: 10})

	body := `{"productId":"` + productID.Hex() + `","quantity":1}`

	c, rec := newContext(t, http.MethodPost, "/api/cart", body, userID)
	if err := AddToCart(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	// Same triple again: one line, quantity 2.
	c, rec = newContext(t, http.MethodPost, "/api/cart", body, userID)
	if err := AddToCart(c); err != nil {
		t.Fatal(err)
	}
	cart := decodeCart(t, rec)
	if len(cart.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(cart.Items))
	}
	if cart.Items[0].Quantity != 2 {
		t.Errorf("quantity = %d, want 2", cart.Items[0].Quantity)
	}
	if cart.Items[0].ProductData == nil {
		t.Error("response items should carry populated product data")
	}
}

func TestAddToCartInsufficientStock(t *testing.T) {
	setupTest(t)
	userID := primitive.NewObjectID()
	productID := insertProduct(t, &models.Product{Name: "Prayer Flags", Price: 20, Stock: 5})

	c, rec := newContext(t, http.MethodPost, "/api/cart",
		`{"productId":"`+productID.Hex()+`","quantity":6}`, userID)
	if err := AddToCart(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}

	// The cart must be unchanged (here: never created).
	c, rec = newContext(t, http.MethodGet, "/api/cart", "", userID)
	if err := GetCart(c); err != nil {
		t.Fatal(err)
	}
	if cart := decodeCart(t, rec); len(cart.Items) != 0 {
		t.Errorf("cart has %d items after rejected add", len(cart.Items))
	}
}

func TestAddToCartMissingProduct(t *testing.T) {
	setupTest(t)
	userID := primitive.NewObjectID()

	c, rec := newContext(t, http.MethodPost, "/api/cart",
		`{"productId":"`+primitive.NewObjectID().Hex()+`","quantity":1}`, userID)
	if err := AddToCart(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestMergeCartAdditive(t *testing.T) {
	setupTest(t)
	userID := primitive.NewObjectID()
	productA := insertProduct(t, &models.Product{Name: "Thangka", Price: 100, Stock: 10})
	productB := insertProduct(t, &models.Product{Name: "Statue", Price: 50, Stock: 10})

	// Existing server-side line: A with quantity 1.
	c, _ := newContext(t, http.MethodPost, "/api/cart",
		`{"productId":"`+productA.Hex()+`","quantity":1}`, userID)
	if err := AddToCart(c); err != nil {
		t.Fatal(err)
	}

	merge := `{"items":[{"productId":"` + productA.Hex() + `","quantity":2},{"productId":"` + productB.Hex() + `","quantity":1}]}`
	c, rec := newContext(t, http.MethodPost, "/api/cart/merge", merge, userID)
	if err := MergeCart(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	cart := decodeCart(t, rec)
	if len(cart.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(cart.Items))
	}
	quantities := map[primitive.ObjectID]int{}
	for _, it := range cart.Items {
		quantities[it.ProductID] += it.Quantity
	}
	if quantities[productA] != 3 {
		t.Errorf("A quantity = %d, want 1+2=3", quantities[productA])
	}
	if quantities[productB] != 1 {
		t.Errorf("B quantity = %d, want 1", quantities[productB])
	}
}

func TestMergeCartSkipsBadLines(t *testing.T) {
	setupTest(t)
	userID := primitive.NewObjectID()
	productA := insertProduct(t, &models.Product{Name: "Thangka", Price: 100, Stock: 10})
	productB := insertProduct(t, &models.Product{Name: "Statue", Price: 50, Stock: 2})

	// One good line, one line whose product no longer exists, one line over
	// stock. The good line lands; the other two are dropped without sinking
	// the merge.
	merge := `{"items":[` +
		`{"productId":"` + productA.Hex() + `","quantity":2},` +
		`{"productId":"` + primitive.NewObjectID().Hex() + `","quantity":1},` +
		`{"productId":"` + productB.Hex() + `","quantity":5}]}`
	c, rec := newContext(t, http.MethodPost, "/api/cart/merge", merge, userID)
	if err := MergeCart(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	cart := decodeCart(t, rec)
	if len(cart.Items) != 1 {
		t.Fatalf("items = %d, want only the valid line", len(cart.Items))
	}
	if cart.Items[0].ProductID != productA || cart.Items[0].Quantity != 2 {
		t.Errorf("surviving line = %+v, want A with quantity 2", cart.Items[0])
	}
}

func TestUpdateCartItem(t *testing.T) {
	setupTest(t)
	userID := primitive.NewObjectID()
	productID := insertProduct(t, &models.Product{Name: "Bowl", Price: 100, Stock: 5})

	c, rec := newContext(t, http.MethodPost, "/api/cart",
		`{"productId":"`+productID.Hex()+`","quantity":2}`, userID)
	if err := AddToCart(c); err != nil {
		t.Fatal(err)
	}
	itemID := decodeCart(t, rec).Items[0].ID

	c, rec = newContext(t, http.MethodPut, "/api/cart/"+itemID.Hex(), `{"quantity":4}`, userID)
	c.SetParamNames("itemId")
	c.SetParamValues(itemID.Hex())
	if err := UpdateCartItem(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if got := decodeCart(t, rec).Items[0].Quantity; got != 4 {
		t.Errorf("quantity = %d, want 4", got)
	}

	// Over stock.
	c, rec = newContext(t, http.MethodPut, "/api/cart/"+itemID.Hex(), `{"quantity":6}`, userID)
	c.SetParamNames("itemId")
	c.SetParamValues(itemID.Hex())
	if err := UpdateCartItem(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("over-stock status = %d, want 400", rec.Code)
	}

	// Below one.
	c, rec = newContext(t, http.MethodPut, "/api/cart/"+itemID.Hex(), `{"quantity":0}`, userID)
	c.SetParamNames("itemId")
	c.SetParamValues(itemID.Hex())
	if err := UpdateCartItem(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("zero-quantity status = %d, want 400", rec.Code)
	}
}

func TestRemoveFromCart(t *testing.T) {
	setupTest(t)
	userID := primitive.NewObjectID()
	productID := insertProduct(t, &models.Product{Name: "Bowl", Price: 100, Stock: 5})

	c, rec := newContext(t, http.MethodPost, "/api/cart",
		`{"productId":"`+productID.Hex()+`","quantity":1}`, userID)
	if err := AddToCart(c); err != nil {
		t.Fatal(err)
	}
	itemID := decodeCart(t, rec).Items[0].ID

	c, rec = newContext(t, http.MethodDelete, "/api/cart/"+itemID.Hex(), "", userID)
	c.SetParamNames("itemId")
	c.SetParamValues(itemID.Hex())
	if err := RemoveFromCart(c); err != nil {
		t.Fatal(err)
	}
	if got := len(decodeCart(t, rec).Items); got != 0 {
		t.Errorf("items = %d, want 0", got)
	}

	// Removing the same id again is a no-op success.
	c, rec = newContext(t, http.MethodDelete, "/api/cart/"+itemID.Hex(), "", userID)
	c.SetParamNames("itemId")
	c.SetParamValues(itemID.Hex())
	if err := RemoveFromCart(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("double remove status = %d, want 200", rec.Code)
	}
}

func TestClearCart(t *testing.T) {
	setupTest(t)
	userID := primitive.NewObjectID()

	// Clearing a user with no cart document succeeds.
	c, rec := newContext(t, http.MethodDelete, "/api/cart", "", userID)
	if err := ClearCart(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for absent cart", rec.Code)
	}

	productID := insertProduct(t, &models.Product{Name: "Bowl", Price: 100, Stock: 5})
	c, _ = newContext(t, http.MethodPost, "/api/cart",
		`{"productId":"`+productID.Hex()+`","quantity":2}`, userID)
	if err := AddToCart(c); err != nil {
		t.Fatal(err)
	}

	c, rec = newContext(t, http.MethodDelete, "/api/cart", "", userID)
	if err := ClearCart(c); err != nil {
		t.Fatal(err)
	}
	if got := len(decodeCart(t, rec).Items); got != 0 {
		t.Errorf("items = %d after clear", got)
	}
}

func TestVariantCartFlow(t *testing.T) {
	setupTest(t)
	userID := primitive.NewObjectID()
	productID := insertProduct(t, &models.Product{
		Name: "Silk Brocade", Price: 10, Stock: 1,
		Variants: []models.Variant{
			{Size: "M", Color: "red", Price: 90, Stock: 2},
			{Size: "L", Color: "red", Price: 95, Stock: 3},
		},
	})

	body := `{"productId":"` + productID.Hex() + `","quantity":2,"size":"M","color":"red"}`
	c, rec := newContext(t, http.MethodPost, "/api/cart", body, userID)
	if err := AddToCart(c); err != nil {
		t.Fatal(err)
	}
	cart := decodeCart(t, rec)
	if cart.Items[0].Price == nil || *cart.Items[0].Price != 90 {
		t.Errorf("snapshot = %v, want variant price 90", cart.Items[0].Price)
	}

	// The M/red variant only has 2 in stock; a third is rejected.
	body = `{"productId":"` + productID.Hex() + `","quantity":1,"size":"M","color":"red"}`
	c, rec = newContext(t, http.MethodPost, "/api/cart", body, userID)
	if err := AddToCart(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 on variant stock", rec.Code)
	}
}
