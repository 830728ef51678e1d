package rest

import (
	"net/http"
	"testing"

	"github.com/gestia/mailroom/model"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginAutoRegisters(t *testing.T) {
	f := newFixture(t)

	token, accountID := f.login(t, "ana", "ana@gestia.local")
	assert.NotEmpty(t, token)

	var acc model.Account
	require.NoError(t, f.db.First(&acc, accountID).Error)
	assert.Equal(t, "ana", acc.Username)
	assert.Equal(t, "ana@gestia.local", acc.Email)
	assert.NotEqual(t, "secret123", acc.PasswordHash)
}

func TestLoginDefaultsEmailFromUsername(t *testing.T) {
	f := newFixture(t)
	_, accountID := f.login(t, "Luis", "")

	var acc model.Account
	require.NoError(t, f.db.First(&acc, accountID).Error)
	assert.Equal(t, "luis@gestia.local", acc.Email)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	f := newFixture(t)
	f.login(t, "ana", "ana@gestia.local")

	w := f.request(t, http.MethodPost, "/api/auth/login", "", gin.H{
		"username": "ana",
		"password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginRejectsDisabledAccount(t *testing.T) {
	f := newFixture(t)
	_, accountID := f.login(t, "ana", "ana@gestia.local")
	require.NoError(t, f.db.Model(&model.Account{}).Where("id = ?", accountID).
		Update("status", 0).Error)

	w := f.request(t, http.MethodPost, "/api/auth/login", "", gin.H{
		"username": "ana",
		"password": "secret123",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAuthMiddlewareRejectsBadToken(t *testing.T) {
	f := newFixture(t)

	w := f.request(t, http.MethodGet, "/api/mailbox/mensajes", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.request(t, http.MethodGet, "/api/mailbox/mensajes", "garbage-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogoutInvalidatesSession(t *testing.T) {
	f := newFixture(t)
	token, _ := f.login(t, "ana", "ana@gestia.local")

	w := f.request(t, http.MethodGet, "/api/mailbox/mensajes", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.request(t, http.MethodPost, "/api/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.request(t, http.MethodGet, "/api/mailbox/mensajes", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "session gone from cache")
}
