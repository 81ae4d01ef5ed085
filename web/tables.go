// ABOUTME: Generic table handlers mapping REST verbs onto the Row Store
// ABOUTME: Enforces admin-only user writes and maps store errors to HTTP statuses
package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/harperreed/crmdesk/db"
	"github.com/harperreed/crmdesk/models"
	"github.com/harperreed/crmdesk/store"
)

var errAdminRequired = errors.New("admin access required")

func statusFor(err error) int {
	switch {
	case errors.Is(err, db.ErrUnknownTable), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, db.ErrUnknownColumn), errors.Is(err, db.ErrInvalidValue):
		return http.StatusBadRequest
	case errors.Is(err, db.ErrConstraint):
		return http.StatusConflict
	case errors.Is(err, store.ErrDeleteSelf), errors.Is(err, errAdminRequired):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func tableParam(c *gin.Context) (db.Table, error) {
	return db.ParseTable(c.Param("table"))
}

func idParam(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: id %q", db.ErrInvalidValue, c.Param("id"))
	}
	return id, nil
}

// decodeRow reads a JSON object keeping numbers exact so integer ids survive.
func decodeRow(c *gin.Context) (db.Row, error) {
	dec := json.NewDecoder(c.Request.Body)
	dec.UseNumber()
	var row db.Row
	if err := dec.Decode(&row); err != nil {
		return nil, fmt.Errorf("%w: request body must be a JSON object: %v", db.ErrInvalidValue, err)
	}
	if row == nil {
		row = db.Row{}
	}
	return row, nil
}

// prepareUserRow turns a plaintext password into a hash, lowercases the email
// and checks the role. Callers may never write password_hash directly.
func prepareUserRow(row db.Row) error {
	if _, ok := row["password_hash"]; ok {
		return fmt.Errorf("%w: password_hash cannot be set directly", db.ErrInvalidValue)
	}
	if raw, ok := row["email"]; ok {
		email, _ := raw.(string)
		if email = db.NormalizeEmail(email); email == "" {
			return fmt.Errorf("%w: email is required", db.ErrInvalidValue)
		}
		row["email"] = email
	}
	if raw, ok := row["role"]; ok {
		role, _ := raw.(string)
		if err := db.CheckRole(role); err != nil {
			return err
		}
	}
	raw, ok := row["password"]
	if !ok {
		return nil
	}
	delete(row, "password")
	password, _ := raw.(string)
	hash, err := db.HashPassword(password)
	if err != nil {
		return fmt.Errorf("%w: %v", db.ErrInvalidValue, err)
	}
	row["password_hash"] = hash
	return nil
}

func requireAdmin(c *gin.Context, table db.Table) error {
	if table != db.Users {
		return nil
	}
	if claims := claimsFrom(c); claims == nil || claims.Role != models.RoleAdmin {
		return errAdminRequired
	}
	return nil
}

func (s *Server) handleList(c *gin.Context) {
	table, err := tableParam(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	rows, err := s.store.GetAll(c.Request.Context(), table)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, db.StripSecrets(table, rows))
}

func (s *Server) handleGet(c *gin.Context) {
	table, err := tableParam(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	id, err := idParam(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	rows, err := s.store.GetAll(c.Request.Context(), table)
	if err != nil {
		s.fail(c, err)
		return
	}
	for _, row := range db.StripSecrets(table, rows) {
		if rowID, ok := row["id"].(int64); ok && rowID == id {
			c.JSON(http.StatusOK, row)
			return
		}
	}
	s.fail(c, fmt.Errorf("%s %d: %w", table, id, store.ErrNotFound))
}

func (s *Server) handleInsert(c *gin.Context) {
	table, err := tableParam(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := requireAdmin(c, table); err != nil {
		s.fail(c, err)
		return
	}
	row, err := decodeRow(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	if table == db.Users {
		if err := prepareUserRow(row); err != nil {
			s.fail(c, err)
			return
		}
	}

	id, err := s.store.Insert(c.Request.Context(), table, row)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.touch()
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (s *Server) handleUpdate(c *gin.Context) {
	table, err := tableParam(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := requireAdmin(c, table); err != nil {
		s.fail(c, err)
		return
	}
	id, err := idParam(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	patch, err := decodeRow(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	if table == db.Users {
		if err := prepareUserRow(patch); err != nil {
			s.fail(c, err)
			return
		}
	}

	changes, err := s.store.Update(c.Request.Context(), table, id, patch)
	if err != nil {
		s.fail(c, err)
		return
	}
	if changes > 0 {
		s.touch()
	}
	c.JSON(http.StatusOK, gin.H{"changes": changes})
}

func (s *Server) handleDelete(c *gin.Context) {
	table, err := tableParam(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := requireAdmin(c, table); err != nil {
		s.fail(c, err)
		return
	}
	id, err := idParam(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	if table == db.Users {
		if claims := claimsFrom(c); claims != nil && claims.UserID == id {
			s.fail(c, store.ErrDeleteSelf)
			return
		}
	}

	changes, err := s.store.Delete(c.Request.Context(), table, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	if changes > 0 {
		s.touch()
	}
	c.JSON(http.StatusOK, gin.H{"changes": changes})
}
