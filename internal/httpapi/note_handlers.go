package httpapi

import (
	"errors"
	"net/http"

	"notebook.app/internal/auth"
	"notebook.app/internal/notes"
)

type createNoteRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (a *API) handleCreateNote(w http.ResponseWriter, r *http.Request) {
	var req createNoteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	n, err := a.notes.Create(r.Context(), ownerID(r), req.Title, req.Content)
	if err != nil {
		handleNoteError(w, r, err)
		return
	}
	w.Header().Set("Location", "/notes/"+n.ID)
	writeJSON(w, http.StatusCreated, n)
}

func (a *API) handleListNotes(w http.ResponseWriter, r *http.Request) {
	list, err := a.notes.List(r.Context(), ownerID(r))
	if err != nil {
		handleNoteError(w, r, err)
		return
	}
	writeNotes(w, list)
}

func (a *API) handleSearchNotes(w http.ResponseWriter, r *http.Request) {
	list, err := a.notes.Search(r.Context(), ownerID(r), r.URL.Query().Get("q"))
	if err != nil {
		handleNoteError(w, r, err)
		return
	}
	writeNotes(w, list)
}

func (a *API) handleGetNote(w http.ResponseWriter, r *http.Request) {
	n, err := a.notes.Get(r.Context(), ownerID(r), r.PathValue("id"))
	if err != nil {
		handleNoteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (a *API) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
	if err := a.notes.Delete(r.Context(), ownerID(r), r.PathValue("id")); err != nil {
		handleNoteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func ownerID(r *http.Request) string {
	id, _ := auth.IdentityFromContext(r.Context())
	return id.UserID
}

func writeNotes(w http.ResponseWriter, list []*notes.Note) {
	if list == nil {
		list = []*notes.Note{}
	}
	writeJSON(w, http.StatusOK, list)
}

func handleNoteError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, notes.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, errMessage(err, notes.ErrInvalidInput))
	case errors.Is(err, notes.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "note not found")
	case errors.Is(err, notes.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "access denied")
	default:
		internalError(w, r, err)
	}
}
