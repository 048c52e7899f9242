package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	// SessionCookie holds the staff session token
	SessionCookie = "staff_session"
	// ContextKeyStaff is the gin context key of the logged in username
	ContextKeyStaff = "staff_user"
)

// dummyHash keeps the timing of unknown usernames close to known ones
const dummyHash = "$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5BWX4Z5Ql2G6VQ1gW0H6v1J1tD8xe"

// Staff checks staff credentials and issues session tokens
type Staff struct {
	users  map[string]string
	secret []byte
	ttl    time.Duration
}

// NewStaff creates an authenticator for the given username to bcrypt hash map
func NewStaff(users map[string]string, secret string) *Staff {
	return &Staff{users: users, secret: []byte(secret), ttl: SessionTTL}
}

// Login checks a username and password and returns a session token
func (s *Staff) Login(username, password string) (string, time.Time, error) {
	hash, ok := s.users[username]
	if !ok {
		CheckPassword(password, dummyHash)
		return "", time.Time{}, ErrInvalidCredentials
	}
	if !CheckPassword(password, hash) {
		return "", time.Time{}, ErrInvalidCredentials
	}
	token, err := GenerateJWT(username, s.secret, s.ttl)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, time.Now().Add(s.ttl), nil
}

// Validate returns the username of a session token
func (s *Staff) Validate(token string) (string, error) {
	claims, err := ValidateJWT(token, s.secret)
	if err != nil {
		return "", err
	}
	if _, ok := s.users[claims.Username]; !ok {
		return "", ErrInvalidJWT
	}
	return claims.Username, nil
}

// SetCookie stores the session token on the response
func (s *Staff) SetCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, token, int(s.ttl.Seconds()), "/", "", c.Request.TLS != nil, true)
}

// ClearCookie removes the session cookie
func (s *Staff) ClearCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, "", -1, "/", "", c.Request.TLS != nil, true)
}

func tokenFrom(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.Split(header, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
		return ""
	}
	token, _ := c.Cookie(SessionCookie)
	return token
}

// Identify sets the staff username on the context when a valid session is
// present and always continues
func (s *Staff) Identify() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := tokenFrom(c); token != "" {
			if username, err := s.Validate(token); err == nil {
				c.Set(ContextKeyStaff, username)
			}
		}
		c.Next()
	}
}

// Required rejects requests without a valid staff session
func (s *Staff) Required() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := tokenFrom(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "You must be logged in to access that page."})
			c.Abort()
			return
		}
		username, err := s.Validate(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			c.Abort()
			return
		}
		c.Set(ContextKeyStaff, username)
		c.Next()
	}
}

// StaffUser returns the logged in username, or "" for visitors
func StaffUser(c *gin.Context) string {
	return c.GetString(ContextKeyStaff)
}
