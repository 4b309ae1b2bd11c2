package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sort"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	appconfig "convertflow/config"
	"convertflow/logger"
)

// Server is a thin pass-through proxy in front of the rate provider. It
// attaches the API key so browser embeddings never see it, and otherwise
// forwards status and body untouched. No caching, no retries, no auth.
type Server struct {
	config *appconfig.Config
	app    *fiber.App
	client *http.Client
	log    *logger.Log
}

func New(cfg *appconfig.Config) *Server {
	app := fiber.New(fiber.Config{
		AppName:               cfg.Convertflow.Name,
		DisableStartupMessage: true,
		ReadTimeout:           cfg.Server.Timeout,
		WriteTimeout:          cfg.Server.Timeout,
	})
	app.Use(cors.New())

	s := &Server{
		config: cfg,
		app:    app,
		client: &http.Client{Timeout: cfg.Server.Timeout},
		log:    logger.GetLogger(),
	}

	app.Get("/api/convert", s.handleConvert)
	app.Get("/api/currencies", s.handleCurrencies)

	return s
}

// App exposes the underlying fiber app for in-process testing.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen() error {
	s.log.WithComponent("server").WithFields(logger.Fields{
		"addr": s.config.Server.ListenAddr,
	}).Info("starting proxy server")
	return s.app.Listen(s.config.Server.ListenAddr)
}

func (s *Server) Shutdown() error {
	s.log.WithComponent("server").Info("shutting down proxy server")
	return s.app.Shutdown()
}

func (s *Server) handleConvert(c *fiber.Ctx) error {
	from := c.Query("from")
	to := c.Query("to")
	amount := c.Query("amount")

	if from == "" || to == "" || amount == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Missing parameters: from, to, amount",
		})
	}

	params := url.Values{}
	params.Set("from", from)
	params.Set("to", to)
	params.Set("amount", amount)

	status, body, err := s.forward(c, "/convert", params)
	if err != nil {
		s.log.WithComponent("server").WithError(err).Warn("convert proxy request failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Status(status).Send(body)
}

type catalogEntry struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// providerCurrency covers the naming variants the provider has used over
// time; the first non-empty field wins.
type providerCurrency struct {
	Code       string `json:"code"`
	ShortCode  string `json:"short_code"`
	Name       string `json:"name"`
	NamePlural string `json:"name_plural"`
	Label      string `json:"label"`
}

func (p providerCurrency) entry(fallbackCode string) catalogEntry {
	code := p.ShortCode
	if code == "" {
		code = p.Code
	}
	if code == "" {
		code = fallbackCode
	}

	name := p.Name
	if name == "" {
		name = p.NamePlural
	}
	if name == "" {
		name = p.Label
	}
	if name == "" {
		name = code
	}

	return catalogEntry{Code: code, Name: name}
}

func (s *Server) handleCurrencies(c *fiber.Ctx) error {
	status, body, err := s.forward(c, "/currencies", url.Values{})
	if err != nil {
		s.log.WithComponent("server").WithError(err).Warn("currencies proxy request failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	if status != http.StatusOK {
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.Status(status).Send(body)
	}

	var payload struct {
		Response json.RawMessage `json:"response"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.Status(status).Send(body)
	}

	entries := normalizeCatalog(payload.Response)
	if entries == nil {
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.Status(status).Send(body)
	}

	return c.Status(status).JSON(fiber.Map{"response": entries})
}

// normalizeCatalog turns either catalog shape, a list or a code-keyed
// map, into a flat [{code,name}] list. Returns nil when the payload
// matches neither shape.
func normalizeCatalog(raw json.RawMessage) []catalogEntry {
	var list []providerCurrency
	if err := json.Unmarshal(raw, &list); err == nil {
		entries := make([]catalogEntry, 0, len(list))
		for _, cur := range list {
			entries = append(entries, cur.entry(""))
		}
		return entries
	}

	var keyed map[string]providerCurrency
	if err := json.Unmarshal(raw, &keyed); err == nil {
		entries := make([]catalogEntry, 0, len(keyed))
		for code, cur := range keyed {
			entries = append(entries, cur.entry(code))
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Code < entries[j].Code })
		return entries
	}

	return nil
}

func (s *Server) forward(c *fiber.Ctx, path string, params url.Values) (int, []byte, error) {
	params.Set("api_key", s.config.Provider.APIKey)
	endpoint := s.config.Provider.BaseURL + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(c.Context(), http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, nil, err
	}

	res, err := s.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return 0, nil, err
	}

	logger.IncrementProxyRequest(len(body))

	return res.StatusCode, body, nil
}
