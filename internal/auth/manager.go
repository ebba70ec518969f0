package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// User represents a user in the system
type User struct {
	ID           string   `json:"id"`
	Username     string   `json:"username"`
	Email        string   `json:"email"`
	PasswordHash string   `json:"-"` // Never expose password hash in JSON
	Roles        []string `json:"roles"`
	Active       bool     `json:"active"`
}

// APIKey represents an API key for authentication
type APIKey struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Key        string    `json:"key,omitempty"` // Plaintext (only shown once)
	HashedKey  string    `json:"-"`             // Stored hash
	UserID     string    `json:"user_id"`
	ExpiresAt  time.Time `json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
	Active     bool      `json:"active"`
}

// Claims represents JWT claims
type Claims struct {
	UserID   string   `json:"user_id"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	jwt.RegisteredClaims
}

// Config holds authentication configuration
type Config struct {
	JWTSecret      string
	JWTExpiry      time.Duration
	AllowAnonymous bool
}

// Manager handles authentication and user management
type Manager struct {
	config         Config
	users          map[string]*User   // userID -> User
	apiKeys        map[string]*APIKey // hashedKey -> APIKey
	userByUsername map[string]*User   // username -> User
	mu             sync.RWMutex
}

// NewManager creates a new authentication manager
func NewManager(config Config) *Manager {
	if config.JWTExpiry == 0 {
		config.JWTExpiry = 24 * time.Hour
	}
	if config.JWTSecret == "" {
		config.JWTSecret = generateRandomString(32)
	}

	return &Manager{
		config:         config,
		users:          make(map[string]*User),
		apiKeys:        make(map[string]*APIKey),
		userByUsername: make(map[string]*User),
	}
}

// CreateUser creates a new user with a password
func (m *Manager) CreateUser(username, email, password string, roles []string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.userByUsername[username]; exists {
		return nil, fmt.Errorf("user already exists: %s", username)
	}

	var passwordHash string
	if password != "" {
		hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		passwordHash = string(hashedBytes)
	}

	user := &User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Roles:        roles,
		Active:       true,
	}

	m.users[user.ID] = user
	m.userByUsername[username] = user

	return user, nil
}

// ValidatePassword checks if the provided password matches the user's password hash
func (m *Manager) ValidatePassword(user *User, password string) bool {
	if user.PasswordHash == "" {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password))
	return err == nil
}

// GetUser retrieves a user by ID
func (m *Manager) GetUser(userID string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, exists := m.users[userID]
	if !exists {
		return nil, fmt.Errorf("user not found: %s", userID)
	}

	return user, nil
}

// GetUserByUsername retrieves a user by username
func (m *Manager) GetUserByUsername(username string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, exists := m.userByUsername[username]
	if !exists {
		return nil, fmt.Errorf("user not found: %s", username)
	}

	return user, nil
}

// CreateAPIKey creates a new API key for a user
func (m *Manager) CreateAPIKey(userID, name string, expiresIn time.Duration) (*APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.users[userID]; !exists {
		return nil, fmt.Errorf("user not found: %s", userID)
	}

	key := generateAPIKey()
	hashedKey := hashAPIKey(key)

	apiKey := &APIKey{
		ID:        uuid.New().String(),
		Name:      name,
		Key:       key, // Plaintext for the initial response only
		HashedKey: hashedKey,
		UserID:    userID,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(expiresIn),
		Active:    true,
	}

	m.apiKeys[hashedKey] = apiKey

	return apiKey, nil
}

// ValidateAPIKey validates an API key and returns the associated user
func (m *Manager) ValidateAPIKey(key string) (*User, *APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	hashedKey := hashAPIKey(key)
	apiKey, exists := m.apiKeys[hashedKey]
	if !exists {
		return nil, nil, fmt.Errorf("invalid API key")
	}

	if !apiKey.Active {
		return nil, nil, fmt.Errorf("API key is inactive")
	}

	if time.Now().After(apiKey.ExpiresAt) {
		return nil, nil, fmt.Errorf("API key has expired")
	}

	user, exists := m.users[apiKey.UserID]
	if !exists {
		return nil, nil, fmt.Errorf("user not found for API key")
	}

	if !user.Active {
		return nil, nil, fmt.Errorf("user is inactive")
	}

	apiKey.LastUsedAt = time.Now()

	return user, apiKey, nil
}

// CreateJWTToken creates a JWT token for a user
func (m *Manager) CreateJWTToken(user *User) (string, error) {
	expiresAt := time.Now().Add(m.config.JWTExpiry)

	claims := &Claims{
		UserID:   user.ID,
		Username: user.Username,
		Roles:    user.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    "videolytics-query-service",
			Subject:   user.ID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(m.config.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// ValidateJWTToken validates a JWT token and returns the claims
func (m *Manager) ValidateJWTToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(m.config.JWTSecret), nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	// Verify user still exists and is active
	m.mu.RLock()
	user, exists := m.users[claims.UserID]
	m.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("user not found")
	}

	if !user.Active {
		return nil, fmt.Errorf("user is inactive")
	}

	return claims, nil
}

// RevokeAPIKey revokes an API key
func (m *Manager) RevokeAPIKey(keyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, apiKey := range m.apiKeys {
		if apiKey.ID == keyID {
			apiKey.Active = false
			return nil
		}
	}

	return fmt.Errorf("API key not found: %s", keyID)
}

// CleanupExpired removes expired API keys
func (m *Manager) CleanupExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for hash, apiKey := range m.apiKeys {
		if now.After(apiKey.ExpiresAt) {
			delete(m.apiKeys, hash)
		}
	}
}

// ListAPIKeys returns all API keys for a user
func (m *Manager) ListAPIKeys(userID string) []*APIKey {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []*APIKey
	for _, apiKey := range m.apiKeys {
		if apiKey.UserID == userID {
			keyCopy := *apiKey
			keyCopy.Key = "" // Don't expose the actual key
			keys = append(keys, &keyCopy)
		}
	}

	return keys
}

// Helper functions

// generateRandomString generates a random hex string of the given byte length
func generateRandomString(length int) string {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		panic(err)
	}
	return hex.EncodeToString(bytes)
}

// generateAPIKey generates a new API key with "vlq_" prefix
func generateAPIKey() string {
	return "vlq_" + generateRandomString(32)
}

// hashAPIKey hashes an API key using SHA256
func hashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}
