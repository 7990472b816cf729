package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/jx"
	"github.com/ogen-go/ogen/validate"

	"github.com/xenking/oralcare-shop/internal/domain/membership"
)

// ApplyMembership requests the Ddcare discount for the caller.
func (h *Handler) ApplyMembership(w http.ResponseWriter, r *http.Request) {
	if err := h.memberships.Apply(r.Context(), principal(r).UserID); err != nil {
		writeError(w, r, err)
		return
	}
	writeMembership(w, membership.StatusPending, nil)
}

func pathUserID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("userID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, &validate.Error{Fields: []validate.FieldError{{Name: "userID", Error: strconv.ErrSyntax}}}
	}
	return id, nil
}

func (h *Handler) ApproveMembership(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUserID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	expiresAt, err := h.memberships.Approve(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeMembership(w, membership.StatusApproved, &expiresAt)
}

func (h *Handler) RejectMembership(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUserID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.memberships.Reject(r.Context(), userID); err != nil {
		writeError(w, r, err)
		return
	}
	writeMembership(w, membership.StatusRejected, nil)
}

func writeMembership(w http.ResponseWriter, status membership.Status, expiresAt *time.Time) {
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("status")
		e.Str(string(status))
		if expiresAt != nil {
			e.FieldStart("expiresAt")
			encodeTime(e, *expiresAt)
		}
		e.ObjEnd()
	})
}
