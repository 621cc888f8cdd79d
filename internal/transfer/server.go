package transfer

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/karma/internal/export"
	"github.com/samcharles93/karma/internal/logger"
	"github.com/samcharles93/karma/internal/schema"
	"github.com/samcharles93/karma/pkg/karma"
)

// MIMEKarma is the content type of wire-format bodies.
const MIMEKarma = "application/x-karma"

// Server exposes a Store over HTTP:
//
//	GET    /v1/arrays                 list entries
//	PUT    /v1/arrays/:name           store a wire-format body
//	GET    /v1/arrays/:name           wire-format bytes
//	DELETE /v1/arrays/:name
//	GET    /v1/arrays/:name/dump      text dump, ?comments=true for annotated output
//	GET    /v1/arrays/:name/json      JSON export
//	GET    /v1/arrays/:name/schema    YAML schema
type Server struct {
	store   *Store
	log     logger.Logger
	maxBody int64
}

// NewServer returns a server on store. Request bodies larger than maxBody bytes
// are rejected; zero means karma.DefaultMaxBytes.
func NewServer(store *Store, log logger.Logger, maxBody int64) *Server {
	if maxBody <= 0 {
		maxBody = karma.DefaultMaxBytes
	}
	return &Server{store: store, log: log, maxBody: maxBody}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/v1/arrays", s.handleList)
	e.PUT("/v1/arrays/:name", s.handlePut)
	e.GET("/v1/arrays/:name", s.handleGet)
	e.DELETE("/v1/arrays/:name", s.handleDelete)
	e.GET("/v1/arrays/:name/dump", s.handleDump)
	e.GET("/v1/arrays/:name/json", s.handleJSON)
	e.GET("/v1/arrays/:name/schema", s.handleSchema)
}

func (s *Server) handleList(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"object": "list",
		"data":   s.store.List(),
	})
}

func (s *Server) handlePut(c *echo.Context) error {
	name := c.Param("name")
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, s.maxBody+1))
	if err != nil {
		return writeError(c, fmt.Errorf("%w: %w", karma.ErrStreamIO, err))
	}
	if int64(len(body)) > s.maxBody {
		return writeError(c, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, s.maxBody))
	}
	entry, err := s.store.PutRaw(name, body)
	if err != nil {
		s.log.Warn("rejected multi-array", "name", name, "error", err)
		return writeError(c, err)
	}
	s.log.Info("stored multi-array", "name", name, "id", entry.ID, "bytes", entry.Size)
	return c.JSON(http.StatusOK, entry)
}

func (s *Server) handleGet(c *echo.Context) error {
	raw, _, ok := s.store.Raw(c.Param("name"))
	if !ok {
		return s.notFound(c)
	}
	return c.Blob(http.StatusOK, MIMEKarma, raw)
}

func (s *Server) handleDelete(c *echo.Context) error {
	name := c.Param("name")
	if !s.store.Delete(name) {
		return s.notFound(c)
	}
	s.log.Info("deleted multi-array", "name", name)
	return c.JSON(http.StatusOK, map[string]any{
		"name":    name,
		"deleted": true,
	})
}

func (s *Server) handleDump(c *echo.Context) error {
	ma, _, err := s.store.Get(c.Param("name"))
	if err != nil {
		return writeError(c, err)
	}
	comments := c.QueryParam("comments") == "true"
	var buf bytes.Buffer
	if err := karma.DumpMultiArray(&buf, ma, comments); err != nil {
		return writeError(c, err)
	}
	return c.Blob(http.StatusOK, echo.MIMETextPlainCharsetUTF8, buf.Bytes())
}

func (s *Server) handleJSON(c *echo.Context) error {
	ma, _, err := s.store.Get(c.Param("name"))
	if err != nil {
		return writeError(c, err)
	}
	out, err := export.Marshal(ma, c.QueryParam("indent") == "true")
	if err != nil {
		return writeError(c, err)
	}
	return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, out)
}

func (s *Server) handleSchema(c *echo.Context) error {
	ma, _, err := s.store.Get(c.Param("name"))
	if err != nil {
		return writeError(c, err)
	}
	out, err := schema.FromMultiArray(ma).Marshal()
	if err != nil {
		return writeError(c, err)
	}
	return c.Blob(http.StatusOK, "application/yaml", out)
}

func (s *Server) notFound(c *echo.Context) error {
	return writeError(c, fmt.Errorf("%w: no multi-array named %q", ErrNotFound, c.Param("name")))
}
