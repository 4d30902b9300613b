package carriers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"logistics-service/internal/models"
)

const defaultRequestTimeout = 30 * time.Second

// XpressbeesCarrier implements the Courier interface for the Xpressbees aggregator.
// One instance holds one account's token and is safe for concurrent use.
type XpressbeesCarrier struct {
	config     XpressbeesConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	tokens     *TokenManager
	vocabulary Vocabulary
	logger     *logrus.Entry
}

// NewXpressbeesCarrier creates a new Xpressbees client instance
func NewXpressbeesCarrier(config XpressbeesConfig, logger *logrus.Entry) *XpressbeesCarrier {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	logger = logger.WithField("courier", string(models.PartnerXpressbees))

	timeout := config.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	limit := rate.Inf
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
	}

	x := &XpressbeesCarrier{
		config: config,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter:    rate.NewLimiter(limit, 1),
		vocabulary: XpressbeesVocabulary,
		logger:     logger,
	}
	x.tokens = NewTokenManager(x.login, config.TokenLifetime, config.TokenBuffer, logger)
	return x
}

// Partner returns the courier partner type
func (x *XpressbeesCarrier) Partner() models.CourierPartner {
	return models.PartnerXpressbees
}

// Tokens exposes the token manager of this account
func (x *XpressbeesCarrier) Tokens() *TokenManager {
	return x.tokens
}

// TestConnection drops the cached token and logs in again
func (x *XpressbeesCarrier) TestConnection(ctx context.Context) error {
	if !x.config.HasCredentials() {
		return fmt.Errorf("%w: login URL or credentials missing", ErrNotConfigured)
	}
	x.tokens.Invalidate("")
	_, err := x.tokens.Token(ctx)
	return err
}

// login exchanges the account email and password for a bearer token
func (x *XpressbeesCarrier) login(ctx context.Context) (string, error) {
	if !x.config.HasCredentials() {
		return "", fmt.Errorf("%w: login URL or credentials missing", ErrNotConfigured)
	}

	payload := map[string]string{
		"email":    x.config.Email,
		"password": x.config.Password,
	}

	body, err := x.send(ctx, http.MethodPost, x.config.LoginURL, payload, "")
	if err != nil {
		return "", fmt.Errorf("login request failed: %w", err)
	}

	var loginResp struct {
		Status  flexString `json:"status"`
		Data    string     `json:"data"`
		Message string     `json:"message"`
	}
	if err := json.Unmarshal(body, &loginResp); err != nil {
		return "", fmt.Errorf("%w: failed to decode login response: %v", ErrInvalidResponse, err)
	}
	if !truthy(loginResp.Status) || loginResp.Data == "" {
		return "", fmt.Errorf("%w: %s", ErrUnauthorized, messageOr(loginResp.Message, "login rejected"))
	}
	return loginResp.Data, nil
}

// GetRates quotes every courier service of the account for one package
func (x *XpressbeesCarrier) GetRates(ctx context.Context, request models.RateRequest) ([]models.RateQuote, error) {
	if x.config.RatesURL == "" || !x.config.HasCredentials() {
		return nil, fmt.Errorf("%w: rates", ErrNotConfigured)
	}

	weightGrams := chargeableWeightGrams(request.Weight, request.Length, request.Width, request.Height)

	codAmount := "0"
	if request.PaymentMode.IsCOD() {
		codAmount = decimal.Max(request.DeclaredValue, decimal.NewFromInt(1)).String()
	}

	payload := map[string]string{
		"origin":       request.OriginPincode,
		"destination":  request.DestinationPincode,
		"payment_type": string(request.PaymentMode),
		"order_amount": request.DeclaredValue.String(),
		"weight":       fmt.Sprintf("%.0f", weightGrams),
		"length":       formatDimension(request.Length),
		"breadth":      formatDimension(request.Width),
		"height":       formatDimension(request.Height),
		"cod_amount":   codAmount,
	}

	x.logger.WithFields(logrus.Fields{
		"origin":            request.OriginPincode,
		"destination":       request.DestinationPincode,
		"chargeable_weight": weightGrams,
		"payment_type":      request.PaymentMode,
	}).Debug("Requesting rates")

	body, token, err := x.authorized(ctx, http.MethodPost, x.config.RatesURL, payload)
	if err != nil {
		return nil, fmt.Errorf("rates request failed: %w", err)
	}

	var ratesResp struct {
		Status  flexString      `json:"status"`
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(body, &ratesResp); err != nil {
		return nil, fmt.Errorf("%w: failed to decode rates response: %v", ErrInvalidResponse, err)
	}

	raw := bytes.TrimSpace(ratesResp.Message)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []models.RateQuote{}, nil
	}

	// On failure the message field carries text instead of rate lines
	if raw[0] == '"' {
		var msg string
		_ = json.Unmarshal(raw, &msg)
		x.checkTokenMessage(msg, token)
		if truthy(ratesResp.Status) {
			return []models.RateQuote{}, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrPartnerRejected, messageOr(msg, "rates unavailable"))
	}

	var lines []xpressbeesRateLine
	if err := json.Unmarshal(raw, &lines); err != nil {
		return nil, fmt.Errorf("%w: failed to decode rate lines: %v", ErrInvalidResponse, err)
	}

	quotes := make([]models.RateQuote, 0, len(lines))
	for _, line := range lines {
		quote, ok := line.toQuote(weightGrams)
		if !ok {
			x.logger.WithField("courier_id", line.ID.String()).Warn("Dropping rate line with unparseable courier charges")
			continue
		}
		quotes = append(quotes, quote)
	}
	return quotes, nil
}

type xpressbeesRateLine struct {
	ID               flexString `json:"id"`
	Name             string     `json:"name"`
	CourierCharges   flexString `json:"courier_charges"`
	CODCharges       flexString `json:"cod_charges"`
	ChargeableWeight flexString `json:"chargeable_weight"`
}

// toQuote computes the total locally as courier plus COD charges; upstream totals are not trusted
func (l xpressbeesRateLine) toQuote(requestedGrams float64) (models.RateQuote, bool) {
	base, ok := l.CourierCharges.Decimal()
	if !ok {
		return models.RateQuote{}, false
	}

	cod := decimal.Zero
	if v, ok := l.CODCharges.Decimal(); ok {
		cod = v
	}

	weight := requestedGrams
	if v, ok := l.ChargeableWeight.Float(); ok && v > 0 {
		weight = v
	}

	return models.RateQuote{
		CourierID:        l.ID.String(),
		CourierName:      l.Name,
		ServiceType:      l.Name,
		ChargeableWeight: weight,
		BaseCharge:       base,
		CODSurcharge:     cod,
		TotalPrice:       base.Add(cod),
	}, true
}

// ListCouriers returns the courier services enabled on the account
func (x *XpressbeesCarrier) ListCouriers(ctx context.Context) ([]models.CourierInfo, error) {
	if x.config.CourierListURL == "" || !x.config.HasCredentials() {
		return nil, fmt.Errorf("%w: courier list", ErrNotConfigured)
	}

	body, _, err := x.authorized(ctx, http.MethodGet, x.config.CourierListURL, nil)
	if err != nil {
		return nil, fmt.Errorf("courier list request failed: %w", err)
	}

	var listResp struct {
		Status flexString `json:"status"`
		Data   []struct {
			ID   flexString `json:"id"`
			Name string     `json:"name"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &listResp); err != nil {
		return nil, fmt.Errorf("%w: failed to decode courier list: %v", ErrInvalidResponse, err)
	}
	if !truthy(listResp.Status) {
		return nil, fmt.Errorf("%w: courier list unavailable", ErrPartnerRejected)
	}

	couriers := make([]models.CourierInfo, 0, len(listResp.Data))
	for _, c := range listResp.Data {
		couriers = append(couriers, models.CourierInfo{ID: c.ID.String(), Name: c.Name})
	}
	return couriers, nil
}

// GenerateAWB books the shipment with the courier matching serviceType
func (x *XpressbeesCarrier) GenerateAWB(ctx context.Context, request models.ShipmentRequest, serviceType string) (*models.ShipmentResult, error) {
	if x.config.AWBURL == "" || !x.config.HasCredentials() {
		return nil, fmt.Errorf("%w: shipment booking", ErrNotConfigured)
	}

	courierID := x.resolveCourierID(ctx, serviceType)
	if courierID == "" {
		return nil, fmt.Errorf("%w: no courier matches service type %q and no default courier is set", ErrNotConfigured, serviceType)
	}

	payload := buildAWBPayload(request, courierID)

	x.logger.WithFields(logrus.Fields{
		"order_number": request.OrderNumber,
		"courier_id":   courierID,
		"service_type": serviceType,
	}).Info("Generating AWB")

	body, token, err := x.authorized(ctx, http.MethodPost, x.config.AWBURL, payload)
	if err != nil {
		return nil, fmt.Errorf("AWB request failed: %w", err)
	}

	var awbResp struct {
		Response   flexString `json:"response"`
		AWBNumber  flexString `json:"awb_number"`
		ShippingID flexString `json:"shipping_id"`
		Label      string     `json:"label"`
		Message    string     `json:"message"`
	}
	if err := json.Unmarshal(body, &awbResp); err != nil {
		return nil, fmt.Errorf("%w: failed to decode AWB response: %v", ErrInvalidResponse, err)
	}

	if !truthy(awbResp.Response) || awbResp.AWBNumber == "" {
		x.checkTokenMessage(awbResp.Message, token)
		return nil, fmt.Errorf("%w: %s", ErrPartnerRejected, messageOr(awbResp.Message, "shipment was not booked"))
	}

	return &models.ShipmentResult{
		AWBNumber:           awbResp.AWBNumber.String(),
		ShippingReferenceID: awbResp.ShippingID.String(),
		LabelURL:            awbResp.Label,
		CourierID:           courierID,
	}, nil
}

// resolveCourierID matches the service type against the courier list by name
// or id, falling back to the configured default courier.
func (x *XpressbeesCarrier) resolveCourierID(ctx context.Context, serviceType string) string {
	want := strings.TrimSpace(serviceType)
	if want != "" && x.config.CourierListURL != "" {
		couriers, err := x.ListCouriers(ctx)
		if err != nil {
			x.logger.WithError(err).Warn("Courier list unavailable, using default courier")
		}
		for _, c := range couriers {
			if strings.EqualFold(c.Name, want) || strings.EqualFold(c.ID, want) {
				return c.ID
			}
		}
	}
	return x.config.DefaultCourierID
}

func buildAWBPayload(request models.ShipmentRequest, courierID string) map[string]interface{} {
	collectable := "0"
	if request.PaymentMode.IsCOD() {
		collectable = request.CollectableAmount.String()
	}

	items := make([]map[string]interface{}, 0, len(request.Items))
	for _, item := range request.Items {
		items = append(items, map[string]interface{}{
			"name":  item.Name,
			"qty":   fmt.Sprintf("%d", item.Quantity),
			"price": item.DeclaredValue.String(),
			"sku":   item.SKU,
			"hsn":   item.HSNCode,
		})
	}

	return map[string]interface{}{
		"order_number":        request.OrderNumber,
		"unique_order_number": "yes",
		"payment_type":        string(request.PaymentMode),
		"order_amount":        request.OrderAmount.String(),
		"collectable_amount":  collectable,
		"package_weight":      fmt.Sprintf("%.0f", request.Weight*1000),
		"package_length":      formatDimension(request.Length),
		"package_breadth":     formatDimension(request.Width),
		"package_height":      formatDimension(request.Height),
		"request_auto_pickup": "yes",
		"courier_id":          courierID,
		"consignee": map[string]string{
			"name":      request.Consignee.Name,
			"address":   request.Consignee.Address,
			"address_2": request.Consignee.Address2,
			"city":      request.Consignee.City,
			"state":     request.Consignee.State,
			"pincode":   request.Consignee.Pincode,
			"phone":     CleanPhoneNumber(request.Consignee.Phone),
			"gstin":     request.Consignee.GSTIN,
		},
		"pickup": map[string]string{
			"warehouse_name": request.Consignor.Company,
			"name":           request.Consignor.Name,
			"address":        request.Consignor.Address,
			"address_2":      request.Consignor.Address2,
			"city":           request.Consignor.City,
			"state":          request.Consignor.State,
			"pincode":        request.Consignor.Pincode,
			"phone":          CleanPhoneNumber(request.Consignor.Phone),
			"gst_number":     request.Consignor.GSTIN,
		},
		"order_items": items,
		"invoice": map[string]string{
			"invoice_number": InvoiceNumber(request.OrderNumber),
			"ebill_number":   EBillReference(request.OrderID.String()),
		},
	}
}

// InvoiceNumber derives the shipment invoice number from the order number
func InvoiceNumber(orderNumber string) string {
	return "INV-" + orderNumber
}

// EBillReference derives a stable e-way bill reference from the order ID
func EBillReference(orderID string) string {
	ref := strings.ToUpper(strings.ReplaceAll(orderID, "-", ""))
	if len(ref) > 12 {
		ref = ref[:12]
	}
	return "EB" + ref
}

// CreateManifest requests one pickup covering all the given AWBs
func (x *XpressbeesCarrier) CreateManifest(ctx context.Context, awbNumbers []string) (*models.ManifestResult, error) {
	if x.config.ManifestURL == "" || !x.config.HasCredentials() {
		return nil, fmt.Errorf("%w: manifest", ErrNotConfigured)
	}
	if len(awbNumbers) == 0 {
		return nil, fmt.Errorf("manifest requires at least one AWB")
	}

	payload := map[string]string{
		"awb_numbers": strings.Join(awbNumbers, ","),
	}

	body, token, err := x.authorized(ctx, http.MethodPost, x.config.ManifestURL, payload)
	if err != nil {
		return nil, fmt.Errorf("manifest request failed: %w", err)
	}

	var manifestResp struct {
		Response flexString `json:"response"`
		Data     string     `json:"data"`
		Message  string     `json:"message"`
	}
	if err := json.Unmarshal(body, &manifestResp); err != nil {
		return nil, fmt.Errorf("%w: failed to decode manifest response: %v", ErrInvalidResponse, err)
	}
	if !truthy(manifestResp.Response) {
		x.checkTokenMessage(manifestResp.Message, token)
		return nil, fmt.Errorf("%w: %s", ErrPartnerRejected, messageOr(manifestResp.Message, "manifest was not created"))
	}

	return &models.ManifestResult{
		ManifestURL: manifestResp.Data,
		AWBNumbers:  append([]string(nil), awbNumbers...),
	}, nil
}

// CancelShipment cancels an AWB. It never fails; the result says what happened.
func (x *XpressbeesCarrier) CancelShipment(ctx context.Context, awbNumber string) models.CancelResult {
	if x.config.CancelURL == "" || !x.config.HasCredentials() {
		return models.CancelResult{Success: false, Message: "Cancellation is not configured for this account"}
	}
	if awbNumber == "" {
		return models.CancelResult{Success: false, Message: "AWB number is required"}
	}

	payload := map[string]string{"awb_number": awbNumber}

	body, token, err := x.authorized(ctx, http.MethodPost, x.config.CancelURL, payload)
	if err != nil {
		x.logger.WithError(err).WithField("awb", awbNumber).Error("Cancellation request failed")
		return models.CancelResult{Success: false, Message: "Unable to reach courier for cancellation"}
	}

	var cancelResp struct {
		Response flexString `json:"response"`
		Status   flexString `json:"status"`
		Message  string     `json:"message"`
	}
	if err := json.Unmarshal(body, &cancelResp); err != nil {
		x.logger.WithError(err).WithField("awb", awbNumber).Error("Failed to decode cancellation response")
		return models.CancelResult{Success: false, Message: "Courier returned an unreadable cancellation response"}
	}

	if truthy(cancelResp.Response) || truthy(cancelResp.Status) {
		return models.CancelResult{Success: true, Message: messageOr(cancelResp.Message, "Shipment cancelled")}
	}
	x.checkTokenMessage(cancelResp.Message, token)
	return models.CancelResult{Success: false, Message: messageOr(cancelResp.Message, "Cancellation failed")}
}

// TrackShipment fetches every tracking leg of an AWB and normalizes it
func (x *XpressbeesCarrier) TrackShipment(ctx context.Context, awbNumber string) (*models.TrackingSnapshot, error) {
	if x.config.TrackingURL == "" || !x.config.HasCredentials() {
		return nil, fmt.Errorf("%w: tracking", ErrNotConfigured)
	}

	endpoint, err := url.Parse(x.config.TrackingURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid tracking URL: %v", ErrNotConfigured, err)
	}
	query := endpoint.Query()
	query.Set("awb", awbNumber)
	endpoint.RawQuery = query.Encode()

	body, token, err := x.authorized(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("tracking request failed: %w", err)
	}

	var trackResp struct {
		Response     flexString      `json:"response"`
		Message      flexString      `json:"message"`
		TrackingData json.RawMessage `json:"tracking_data"`
		Data         json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &trackResp); err != nil {
		return nil, fmt.Errorf("%w: failed to decode tracking response: %v", ErrNoTrackingData, err)
	}
	if trackResp.Response != "" && !truthy(trackResp.Response) {
		x.checkTokenMessage(trackResp.Message.String(), token)
		return nil, fmt.Errorf("%w: %s", ErrNoTrackingData, messageOr(trackResp.Message.String(), "tracking unavailable"))
	}

	data := trackResp.TrackingData
	if len(bytes.TrimSpace(data)) == 0 {
		data = nestedTrackingData(trackResp.Data)
	}
	return NormalizeTracking(awbNumber, data, x.vocabulary)
}

// nestedTrackingData reads data.tracking_data when data is an object.
// An array data carries shipment summaries, not events.
func nestedTrackingData(data json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}
	var nested struct {
		TrackingData json.RawMessage `json:"tracking_data"`
	}
	if err := json.Unmarshal(trimmed, &nested); err != nil {
		return nil
	}
	return nested.TrackingData
}

// authorized sends a request carrying the account bearer token. The token used
// is returned so callers can report it as stale.
func (x *XpressbeesCarrier) authorized(ctx context.Context, method, endpoint string, payload interface{}) ([]byte, string, error) {
	token, err := x.tokens.Token(ctx)
	if err != nil {
		return nil, "", err
	}
	body, err := x.send(ctx, method, endpoint, payload, token)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			x.tokens.Invalidate(token)
		}
		return nil, token, err
	}
	return body, token, nil
}

// send performs one rate limited HTTP call and returns the body of a 2xx response
func (x *XpressbeesCarrier) send(ctx context.Context, method, endpoint string, payload interface{}, token string) ([]byte, error) {
	if err := x.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	var reader io.Reader
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	}

	resp, err := x.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("%w: API returned status %d: %s", ErrUnauthorized, resp.StatusCode, string(bodyBytes))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}
	return bodyBytes, nil
}

// checkTokenMessage invalidates the token when a 200 response blames it
func (x *XpressbeesCarrier) checkTokenMessage(message, token string) {
	if mentionsToken(message) {
		x.logger.WithField("message", message).Warn("Courier reported an invalid token")
		x.tokens.Invalidate(token)
	}
}

// truthy accepts true, "true", 1 and "1" as partner success flags
func truthy(flag flexString) bool {
	switch strings.ToLower(flag.String()) {
	case "true", "1", "yes", "success":
		return true
	}
	return false
}

func messageOr(message, fallback string) string {
	if strings.TrimSpace(message) == "" {
		return fallback
	}
	return message
}

func formatDimension(v float64) string {
	return decimal.NewFromFloat(v).Round(2).String()
}
