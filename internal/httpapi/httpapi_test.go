package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	x402f "github.com/x402labs/facilitator"
	"github.com/x402labs/facilitator/internal/registry"
	"github.com/x402labs/facilitator/internal/verifier"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testHandler(t *testing.T) (*Handler, *gin.Engine) {
	t.Helper()
	reg := registry.New([]registry.NetworkConfig{registry.BaseSepolia})
	v := verifier.New(reg, nil)
	h := New(reg, v, nil, nil, nil, x402f.DefaultTimeouts)

	r := gin.New()
	h.Register(r.Group("/"))
	return h, r
}

func doJSON(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandleVerifyDescriptor(t *testing.T) {
	_, r := testHandler(t)
	w := doJSON(r, http.MethodGet, "/verify", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "paymentPayload") {
		t.Fatalf("descriptor body missing request shape: %s", w.Body.String())
	}
}

func TestHandleVerify_MalformedBody(t *testing.T) {
	_, r := testHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/verify", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestHandleVerify_InvalidSignatureIsStill200(t *testing.T) {
	_, r := testHandler(t)
	body := verifyRequest{
		PaymentPayload: x402f.PaymentPayload{
			X402Version: 1,
			Scheme:      "exact",
			Network:     "base-sepolia",
			Payload: x402f.EVMPayload{
				Signature: "0x" + strings.Repeat("00", 65),
				Authorization: x402f.Authorization{
					From:        "0x1111111111111111111111111111111111111111",
					To:          "0x2222222222222222222222222222222222222222",
					Value:       "1000",
					ValidAfter:  "0",
					ValidBefore: "9999999999",
					Nonce:       "0x" + strings.Repeat("11", 32),
				},
			},
		},
		PaymentRequirements: x402f.PaymentRequirements{
			Scheme:            "exact",
			Network:           "base-sepolia",
			MaxAmountRequired: "1000",
			PayTo:             "0x2222222222222222222222222222222222222222",
			Asset:             registry.BaseSepolia.DefaultAsset.Address,
		},
	}

	w := doJSON(r, http.MethodPost, "/verify", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 even for an invalid payment", w.Code)
	}

	var resp x402f.VerifyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.IsValid {
		t.Fatalf("expected isValid=false for a zero signature")
	}
	if resp.InvalidReason == "" {
		t.Fatalf("expected an invalidReason to be set")
	}
}

func TestHandleSettle_MalformedBody(t *testing.T) {
	_, r := testHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/settle", strings.NewReader("not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestHandleSupported(t *testing.T) {
	_, r := testHandler(t)
	w := doJSON(r, http.MethodGet, "/supported", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp x402f.SupportedResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Kinds) != 1 {
		t.Fatalf("expected exactly one supported kind, got %d", len(resp.Kinds))
	}
	if resp.Kinds[0].Network != "base-sepolia" || resp.Kinds[0].Scheme != "exact" {
		t.Fatalf("unexpected kind: %+v", resp.Kinds[0])
	}
}
