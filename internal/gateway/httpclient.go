package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"adledger/internal/model"
)

// HTTPCollaborators talks JSON to the internal spend, payment and campaign
// services. It is the production binding for the collaborator interfaces;
// tests and other deployments inject their own implementations.
type HTTPCollaborators struct {
	spendBase    string
	paymentBase  string
	platformBase string
	client       *http.Client
}

func NewHTTPCollaborators(spendBase, paymentBase, platformBase string) *HTTPCollaborators {
	return &HTTPCollaborators{
		spendBase:    spendBase,
		paymentBase:  paymentBase,
		platformBase: platformBase,
		client:       &http.Client{},
	}
}

func (c *HTTPCollaborators) postJSON(ctx context.Context, rawURL string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s: unexpected status %d", rawURL, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *HTTPCollaborators) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return model.ErrAccountNotFound
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s: unexpected status %d", rawURL, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// ActualSpend implements SpendSource.
func (c *HTTPCollaborators) ActualSpend(ctx context.Context, accountID, businessDate string) (model.Money, error) {
	var out struct {
		AmountCents int64 `json:"amount_cents"`
		Final       bool  `json:"final"`
	}
	u := fmt.Sprintf("%s/spend/%s?date=%s", c.spendBase, url.PathEscape(accountID), url.QueryEscape(businessDate))
	if err := c.getJSON(ctx, u, &out); err != nil {
		return 0, err
	}
	if !out.Final {
		// Never settle against a number that can still change.
		return 0, fmt.Errorf("spend for %s on %s not yet final: %w", accountID, businessDate, model.ErrSpendSourceUnavailable)
	}
	return model.Money(out.AmountCents), nil
}

// Charge implements PaymentGateway.
func (c *HTTPCollaborators) Charge(ctx context.Context, accountID string, amount model.Money, idempotencyKey string) (ChargeResult, error) {
	var out ChargeResult
	err := c.postJSON(ctx, c.paymentBase+"/charges", map[string]any{
		"account_id":      accountID,
		"amount_cents":    amount.Cents(),
		"idempotency_key": idempotencyKey,
	}, &out)
	if err != nil {
		return ChargeResult{}, err
	}
	return out, nil
}

// DefaultPaymentMethod implements PaymentGateway.
func (c *HTTPCollaborators) DefaultPaymentMethod(ctx context.Context, accountID string) (string, error) {
	var out struct {
		PaymentMethodID string `json:"payment_method_id"`
	}
	u := fmt.Sprintf("%s/accounts/%s/payment-method", c.paymentBase, url.PathEscape(accountID))
	if err := c.getJSON(ctx, u, &out); err != nil {
		return "", err
	}
	return out.PaymentMethodID, nil
}

// SetBudgetMultiplier implements CampaignPlatform.
func (c *HTTPCollaborators) SetBudgetMultiplier(ctx context.Context, accountID string, multiplier float64) error {
	u := fmt.Sprintf("%s/accounts/%s/budget-multiplier", c.platformBase, url.PathEscape(accountID))
	return c.postJSON(ctx, u, map[string]any{"multiplier": multiplier}, nil)
}

// PauseAll implements CampaignPlatform.
func (c *HTTPCollaborators) PauseAll(ctx context.Context, accountID string) error {
	u := fmt.Sprintf("%s/accounts/%s/pause", c.platformBase, url.PathEscape(accountID))
	return c.postJSON(ctx, u, map[string]any{}, nil)
}

// ResumeAll implements CampaignPlatform.
func (c *HTTPCollaborators) ResumeAll(ctx context.Context, accountID string) error {
	u := fmt.Sprintf("%s/accounts/%s/resume", c.platformBase, url.PathEscape(accountID))
	return c.postJSON(ctx, u, map[string]any{}, nil)
}

// State implements CampaignPlatform.
func (c *HTTPCollaborators) State(ctx context.Context, accountID string) (PlatformState, error) {
	var out PlatformState
	u := fmt.Sprintf("%s/accounts/%s/state", c.platformBase, url.PathEscape(accountID))
	if err := c.getJSON(ctx, u, &out); err != nil {
		return PlatformState{}, err
	}
	return out, nil
}
