package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clara-platform/clara-backend/internal/core/clerror"
	"github.com/clara-platform/clara-backend/internal/phonetic"
)

// LexiconHandler manages the phonetic lexicon: batch imports land as
// "generated" entries, a language master reviews and approves them.
type LexiconHandler struct {
	phonetic *phonetic.Service
}

func NewLexiconHandler(svc *phonetic.Service) *LexiconHandler {
	return &LexiconHandler{phonetic: svc}
}

func (h *LexiconHandler) importBody(c *gin.Context) ([]byte, bool) {
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		abortWith(c, clerror.Wrap(clerror.Validation, err, "read import body"))
		return nil, false
	}
	if len(data) == 0 {
		abortWith(c, clerror.New(clerror.Validation, "import body is empty"))
		return nil, false
	}
	return data, true
}

func (h *LexiconHandler) ImportPlain(c *gin.Context) {
	data, ok := h.importBody(c)
	if !ok {
		return
	}
	n, err := h.phonetic.ImportPlain(dbc(c), c.Param("language"), data)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": n})
}

func (h *LexiconHandler) ImportAligned(c *gin.Context) {
	data, ok := h.importBody(c)
	if !ok {
		return
	}
	n, err := h.phonetic.ImportAligned(dbc(c), c.Param("language"), data)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": n})
}

// Pending lists entries awaiting review, plain and aligned side by side.
func (h *LexiconHandler) Pending(c *gin.Context) {
	language := c.Param("language")
	plain, err := h.phonetic.PendingPlain(dbc(c), language)
	if err != nil {
		abortWith(c, err)
		return
	}
	aligned, err := h.phonetic.PendingAligned(dbc(c), language)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"plain": plain, "aligned": aligned})
}

type approveRequest struct {
	Kind  string   `json:"kind"` // plain | aligned
	Words []string `json:"words"`
}

func (h *LexiconHandler) Approve(c *gin.Context) {
	var req approveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWith(c, clerror.Wrap(clerror.Validation, err, "bad approve body"))
		return
	}
	language := c.Param("language")
	var err error
	switch req.Kind {
	case "plain":
		err = h.phonetic.ApprovePlain(dbc(c), language, req.Words)
	case "aligned":
		err = h.phonetic.ApproveAligned(dbc(c), language, req.Words)
	default:
		err = clerror.New(clerror.Validation, "unknown lexicon kind %q", req.Kind)
	}
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"approved": len(req.Words)})
}

type orthographyRequest struct {
	Rules   map[string][]string `json:"rules"`
	Accents []string            `json:"accents"`
}

// SaveOrthography replaces the language's grapheme/phoneme rules and derives
// aligned entries from them.
func (h *LexiconHandler) SaveOrthography(c *gin.Context) {
	var req orthographyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWith(c, clerror.Wrap(clerror.Validation, err, "bad orthography body"))
		return
	}
	orth := phonetic.Orthography{Rules: req.Rules, Accents: make(map[string]bool, len(req.Accents))}
	for _, a := range req.Accents {
		orth.Accents[a] = true
	}
	derived, err := h.phonetic.SaveOrthography(dbc(c), c.Param("language"), orth)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"derived_aligned": derived})
}
