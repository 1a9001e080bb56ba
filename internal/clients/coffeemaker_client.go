// internal/clients/coffeemaker_client.go
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"coffeemaker/internal/coffeemaker"
	"coffeemaker/internal/ingredient"
	"coffeemaker/internal/recipe"
	"coffeemaker/pkg/eventstore"
)

// APIError is a non-2xx answer from the service.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected status code: %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status code: %d: %s: %s", e.StatusCode, e.Code, e.Message)
}

type CoffeeMakerClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewCoffeeMakerClient talks to the service at baseURL. A nil httpClient gets a 10s timeout.
func NewCoffeeMakerClient(baseURL string, httpClient *http.Client) *CoffeeMakerClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &CoffeeMakerClient{baseURL: baseURL, httpClient: httpClient}
}

func (c *CoffeeMakerClient) do(ctx context.Context, method, path string, body interface{}, want int, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var payload coffeemaker.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&payload) == nil {
			apiErr.Code = payload.Error
			apiErr.Message = payload.Message
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func recipePath(name string) string {
	return "/api/v1/recipes/" + url.PathEscape(name)
}

// MakeCoffee pays amountPaid for the named recipe and returns the change.
func (c *CoffeeMakerClient) MakeCoffee(ctx context.Context, name string, amountPaid int) (int, error) {
	var resp coffeemaker.PurchaseResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/makecoffee/"+url.PathEscape(name), amountPaid, http.StatusOK, &resp); err != nil {
		return 0, err
	}
	return resp.Change, nil
}

func (c *CoffeeMakerClient) ListRecipes(ctx context.Context) ([]recipe.Recipe, error) {
	var recipes []recipe.Recipe
	if err := c.do(ctx, http.MethodGet, "/api/v1/recipes", nil, http.StatusOK, &recipes); err != nil {
		return nil, err
	}
	return recipes, nil
}

func (c *CoffeeMakerClient) GetRecipe(ctx context.Context, name string) (recipe.Recipe, error) {
	var r recipe.Recipe
	err := c.do(ctx, http.MethodGet, recipePath(name), nil, http.StatusOK, &r)
	return r, err
}

func (c *CoffeeMakerClient) AddRecipe(ctx context.Context, req coffeemaker.RecipeRequest) (recipe.Recipe, error) {
	var r recipe.Recipe
	err := c.do(ctx, http.MethodPost, "/api/v1/recipes", req, http.StatusCreated, &r)
	return r, err
}

// UpdateRecipe replaces the recipe called name and returns its new name.
func (c *CoffeeMakerClient) UpdateRecipe(ctx context.Context, name string, req coffeemaker.RecipeRequest) (string, error) {
	var resp coffeemaker.UpdateRecipeResponse
	if err := c.do(ctx, http.MethodPut, recipePath(name), req, http.StatusOK, &resp); err != nil {
		return "", err
	}
	return resp.Name, nil
}

func (c *CoffeeMakerClient) DeleteRecipe(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, recipePath(name), nil, http.StatusNoContent, nil)
}

func (c *CoffeeMakerClient) Inventory(ctx context.Context) (ingredient.Amounts, error) {
	var levels ingredient.Amounts
	err := c.do(ctx, http.MethodGet, "/api/v1/inventory", nil, http.StatusOK, &levels)
	return levels, err
}

func (c *CoffeeMakerClient) Replenish(ctx context.Context, amounts ingredient.Amounts) (ingredient.Amounts, error) {
	var levels ingredient.Amounts
	err := c.do(ctx, http.MethodPut, "/api/v1/inventory", amounts, http.StatusOK, &levels)
	return levels, err
}

func (c *CoffeeMakerClient) Events(ctx context.Context, afterID int64, limit int) ([]eventstore.Event, error) {
	q := url.Values{}
	q.Set("after", strconv.FormatInt(afterID, 10))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var events []eventstore.Event
	if err := c.do(ctx, http.MethodGet, "/api/v1/events?"+q.Encode(), nil, http.StatusOK, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (c *CoffeeMakerClient) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, http.StatusOK, nil)
}
