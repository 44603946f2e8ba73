package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tabsdata/tabsdata-server/internal/data/listing"
	"github.com/tabsdata/tabsdata-server/internal/pkg/apierr"
	"github.com/tabsdata/tabsdata-server/internal/pkg/logger"
	"github.com/tabsdata/tabsdata-server/internal/registry"
	"github.com/tabsdata/tabsdata-server/internal/service"
)

type CoreHandler struct {
	log  *logger.Logger
	core *service.Core
}

func NewCoreHandler(baseLog *logger.Logger, core *service.Core) *CoreHandler {
	return &CoreHandler{log: baseLog.With("handler", "CoreHandler"), core: core}
}

func writeError(c *gin.Context, err error) {
	var e *apierr.Error
	if errors.As(err, &e) {
		c.JSON(e.Kind.HTTPStatus(), gin.H{"kind": e.Kind.String(), "error": e.Message})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"kind": "fatal", "error": err.Error()})
}

// requestUser resolves the caller identity; session evaluation itself is
// outside the core.
func requestUser(c *gin.Context) string {
	if u := strings.TrimSpace(c.GetHeader("X-User-Id")); u != "" {
		return u
	}
	return "anonymous"
}

func listParams(c *gin.Context) listing.Params {
	p := listing.Params{
		OrderBy:      c.Query("order-by"),
		Next:         c.Query("next"),
		Previous:     c.Query("previous"),
		PaginationID: c.Query("id"),
		Filter:       c.QueryArray("filter"),
	}
	if l := c.Query("len"); l != "" {
		if n, err := strconv.Atoi(l); err == nil {
			p.Len = n
		}
	}
	return p
}

// ---- collections ----

func (h *CoreHandler) ListCollections(c *gin.Context) {
	out, err := h.core.ListCollections(c.Request.Context(), listParams(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

type createCollectionBody struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

func (h *CoreHandler) CreateCollection(c *gin.Context) {
	var body createCollectionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, apierr.Wrap(apierr.Invalid, err, "invalid request body"))
		return
	}
	out, err := h.core.CreateCollection(c.Request.Context(), body.Name, body.Description, requestUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h *CoreHandler) DeleteCollection(c *gin.Context) {
	if err := h.core.DeleteCollection(c.Request.Context(), c.Param("collection"), requestUser(c)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ---- functions ----

func (h *CoreHandler) ListFunctions(c *gin.Context) {
	out, err := h.core.ListFunctions(c.Request.Context(), c.Param("collection"), listParams(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (h *CoreHandler) RegisterFunction(c *gin.Context) {
	var decl registry.FunctionDecl
	if err := c.ShouldBindJSON(&decl); err != nil {
		writeError(c, apierr.Wrap(apierr.Invalid, err, "invalid function declaration"))
		return
	}
	fn, err := h.core.RegisterFunction(c.Request.Context(), c.Param("collection"), decl, requestUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, fn)
}

func (h *CoreHandler) UpdateFunction(c *gin.Context) {
	var decl registry.FunctionDecl
	if err := c.ShouldBindJSON(&decl); err != nil {
		writeError(c, apierr.Wrap(apierr.Invalid, err, "invalid function declaration"))
		return
	}
	fn, err := h.core.UpdateFunction(c.Request.Context(), c.Param("collection"), c.Param("function"), decl, requestUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, fn)
}

func (h *CoreHandler) DeleteFunction(c *gin.Context) {
	err := h.core.DeleteFunction(c.Request.Context(), c.Param("collection"), c.Param("function"), requestUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type triggerBody struct {
	Name *string `json:"name"`
}

func (h *CoreHandler) Trigger(c *gin.Context) {
	var body triggerBody
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			writeError(c, apierr.Wrap(apierr.Invalid, err, "invalid request body"))
			return
		}
	}
	execution, err := h.core.Trigger(c.Request.Context(), c.Param("collection"), c.Param("function"), body.Name, requestUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"execution_id": execution.ID})
}

// ---- tables ----

func (h *CoreHandler) ListTables(c *gin.Context) {
	out, err := h.core.ListTables(c.Request.Context(), c.Param("collection"), listParams(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (h *CoreHandler) DeleteTable(c *gin.Context) {
	err := h.core.DeleteTable(c.Request.Context(), c.Param("collection"), c.Param("table"), requestUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *CoreHandler) TableSchema(c *gin.Context) {
	schema, err := h.core.TableSchema(c.Request.Context(), c.Param("collection"), c.Param("table"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", schema)
}

func (h *CoreHandler) ListTableDataVersions(c *gin.Context) {
	out, err := h.core.ListTableDataVersions(c.Request.Context(), c.Param("collection"), c.Param("table"), listParams(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

// ---- executions / transactions / runs ----

func (h *CoreHandler) ListExecutions(c *gin.Context) {
	out, err := h.core.ListExecutions(c.Request.Context(), listParams(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (h *CoreHandler) GetExecution(c *gin.Context) {
	out, err := h.core.GetExecution(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *CoreHandler) ListExecutionTransactions(c *gin.Context) {
	out, err := h.core.ListExecutionTransactions(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (h *CoreHandler) CancelExecution(c *gin.Context) {
	if err := h.core.CancelExecution(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *CoreHandler) ListTransactions(c *gin.Context) {
	out, err := h.core.ListTransactions(c.Request.Context(), listParams(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (h *CoreHandler) CancelTransaction(c *gin.Context) {
	if err := h.core.CancelTransaction(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *CoreHandler) RecoverTransaction(c *gin.Context) {
	if err := h.core.RecoverTransaction(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *CoreHandler) ListFunctionRuns(c *gin.Context) {
	out, err := h.core.ListFunctionRuns(c.Request.Context(), listParams(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (h *CoreHandler) HoldRun(c *gin.Context) {
	if err := h.core.HoldRun(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *CoreHandler) ResumeRun(c *gin.Context) {
	if err := h.core.ResumeRun(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CallbackHandler receives worker response envelopes.
type CallbackHandler struct {
	log  *logger.Logger
	core *service.Core
}

func NewCallbackHandler(baseLog *logger.Logger, core *service.Core) *CallbackHandler {
	return &CallbackHandler{log: baseLog.With("handler", "CallbackHandler"), core: core}
}

func (h *CallbackHandler) Callback(c *gin.Context) {
	runID := c.Param("function_run_id")
	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		writeError(c, apierr.Wrap(apierr.Invalid, err, "read callback body"))
		return
	}
	if err := h.core.WorkerCallback(c.Request.Context(), runID, token, body); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}
