package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"logane/internal/keywallet"
	"logane/internal/ledger"
	"logane/internal/networks"
	"logane/internal/provider"
	"logane/internal/services"
	"logane/internal/session"
)

type fixedBalance struct{}

func (fixedBalance) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return big.NewInt(2_000_000_000_000_000_000), nil
}

// brokenWriter fails every body write and keeps what was attempted.
type brokenWriter struct {
	*httptest.ResponseRecorder
	attempts []string
}

func (w *brokenWriter) Write(b []byte) (int, error) {
	w.attempts = append(w.attempts, string(b))
	return 0, errors.New("connection reset")
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

func newTestRouter(t *testing.T) (*gin.Engine, *keywallet.Wallet) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	reg := networks.NewRegistry(networks.BaseSepolia, networks.BaseMainnet)
	wallet := keywallet.New(key, reg.All(), keywallet.Authorized(),
		keywallet.WithDialer(func(context.Context, string) (keywallet.BalanceReader, error) { return fixedBalance{}, nil }))

	s := session.New(provider.Adapt(wallet), reg.Default())
	s.Start(context.Background())
	t.Cleanup(s.Close)

	service := services.NewRaffleService(s, ledger.NewSimulated())
	router := gin.New()
	NewHTTPHandler(service, reg).RegisterRoutes(router)
	return router, wallet
}

func do(t *testing.T, router *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

const createBody = `{
	"title": "Rifa de prueba",
	"description": "Dos premios",
	"prizes": [
		{"name": "Consola", "value": "0.4"},
		{"name": "Juego", "value": "0.05"}
	],
	"prizeCount": 2,
	"ticketPrice": "0.01",
	"maxParticipants": 30,
	"duration": 86400,
	"paymentToken": "ETH"
}`

func TestHealthAndDebug(t *testing.T) {
	router, _ := newTestRouter(t)

	w, env := do(t, router, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, env.Success)
	require.Contains(t, string(env.Data), `"ledger":"simulated"`)

	w, env = do(t, router, http.MethodGet, "/api/debug", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, string(env.Data), `"chainId":84532`)

	w, _ = do(t, router, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestSessionRoutes(t *testing.T) {
	router, wallet := newTestRouter(t)

	w, env := do(t, router, http.MethodGet, "/api/session", "")
	require.Equal(t, http.StatusOK, w.Code)
	var view map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &view))
	require.Equal(t, "connected", view["state"])
	require.Equal(t, true, view["isConnected"])
	require.Equal(t, true, view["isCorrectNetwork"])
	require.Equal(t, "2.0000", view["balance"])
	require.Equal(t, session.FormatAddress(wallet.Address().Hex()), view["shortAddress"])

	w, env = do(t, router, http.MethodPost, "/api/session/disconnect", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, string(env.Data), `"state":"disconnected"`)

	w, env = do(t, router, http.MethodPost, "/api/session/balance", "")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Equal(t, "not_ready", env.Error.Kind)

	w, env = do(t, router, http.MethodPost, "/api/session/connect", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, string(env.Data), `"isConnected":true`)
}

func TestRaffleRoutes(t *testing.T) {
	router, wallet := newTestRouter(t)

	t.Run("list active raffles", func(t *testing.T) {
		w, env := do(t, router, http.MethodGet, "/api/raffles", "")
		require.Equal(t, http.StatusOK, w.Code)
		var raffles []map[string]any
		require.NoError(t, json.Unmarshal(env.Data, &raffles))
		require.Len(t, raffles, 2)
		require.Equal(t, "Rifa iPhone 15 Pro", raffles[0]["title"])
		require.Equal(t, "0.010 ETH", raffles[0]["ticketPriceFormatted"])
	})

	w, env := do(t, router, http.MethodPost, "/api/raffles", createBody)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.Contains(t, string(env.Data), `"raffleId":1001`)

	t.Run("get created raffle", func(t *testing.T) {
		w, env := do(t, router, http.MethodGet, "/api/raffles/1001", "")
		require.Equal(t, http.StatusOK, w.Code)
		var r map[string]any
		require.NoError(t, json.Unmarshal(env.Data, &r))
		require.Equal(t, float64(2), r["prizeCount"])
		require.Equal(t, wallet.Address().Hex(), r["creator"])
		require.Equal(t, float64(0), r["participantCount"])
	})

	t.Run("user raffles", func(t *testing.T) {
		_, env := do(t, router, http.MethodGet, "/api/raffles?user="+strings.ToLower(wallet.Address().Hex()), "")
		var raffles []map[string]any
		require.NoError(t, json.Unmarshal(env.Data, &raffles))
		require.Len(t, raffles, 1)
	})

	t.Run("unknown and malformed ids", func(t *testing.T) {
		w, env := do(t, router, http.MethodGet, "/api/raffles/999", "")
		require.Equal(t, http.StatusNotFound, w.Code)
		require.False(t, env.Success)

		w, _ = do(t, router, http.MethodGet, "/api/raffles/abc", "")
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("invalid creation", func(t *testing.T) {
		body := strings.Replace(createBody, `"maxParticipants": 30`, `"maxParticipants": 2`, 1)
		w, env := do(t, router, http.MethodPost, "/api/raffles", body)
		require.Equal(t, http.StatusBadRequest, w.Code)
		require.Equal(t, "validation_error", env.Error.Kind)
	})

	t.Run("participate", func(t *testing.T) {
		w, _ := do(t, router, http.MethodPost, "/api/raffles/1001/participate/check", "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		w, _ = do(t, router, http.MethodPost, "/api/raffles/1001/participate", "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		w, env := do(t, router, http.MethodPost, "/api/raffles/1001/participate", `{"userAddress":"`+wallet.Address().Hex()+`"}`)
		require.Equal(t, http.StatusBadRequest, w.Code)
		require.Equal(t, "already participated", env.Error.Message)
	})

	t.Run("draw before end", func(t *testing.T) {
		w, env := do(t, router, http.MethodPost, "/api/raffles/1001/draw", "")
		require.Equal(t, http.StatusBadRequest, w.Code)
		require.Equal(t, "raffle has not ended yet", env.Error.Message)
	})

	t.Run("claim needs a prize index", func(t *testing.T) {
		w, _ := do(t, router, http.MethodPost, "/api/raffles/1001/claim", `{}`)
		require.Equal(t, http.StatusBadRequest, w.Code)

		w, env := do(t, router, http.MethodPost, "/api/raffles/1001/claim", `{"prizeIndex":0}`)
		require.Equal(t, http.StatusBadRequest, w.Code)
		require.Equal(t, "winners not drawn yet", env.Error.Message)
	})

	t.Run("export results", func(t *testing.T) {
		w, _ := do(t, router, http.MethodGet, "/api/raffles/1001/results.csv", "")
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "text/csv", w.Header().Get("Content-Type"))
		require.True(t, strings.HasPrefix(w.Body.String(), "\xef\xbb\xbf"))
		body := strings.TrimPrefix(w.Body.String(), "\xef\xbb\xbf")
		lines := strings.Split(strings.TrimSpace(body), "\n")
		require.Len(t, lines, 3)
		require.Equal(t, "slot,prize,value,winner", lines[0])
		require.True(t, strings.HasPrefix(lines[1], "1,Consola,0.400 ETH,"))
	})
}

func TestExportResultsCSVWriteFailure(t *testing.T) {
	router, _ := newTestRouter(t)
	w := &brokenWriter{ResponseRecorder: httptest.NewRecorder()}
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/raffles/1/results.csv", nil))

	require.NotEmpty(t, w.attempts)
	require.Equal(t, "\xef\xbb\xbf", w.attempts[0])
	for _, a := range w.attempts {
		require.NotContains(t, a, "slot,prize")
	}
}
