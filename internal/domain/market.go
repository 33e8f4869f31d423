package domain

import "time"

// Lados de un mercado binario.
const (
	SideYes = "YES"
	SideNo  = "NO"
)

// Market representa un mercado de predicción binario de corta duración.
// WinnerTokenID queda vacío hasta que el mercado resuelva.
type Market struct {
	Slug          string
	Question      string
	YesTokenID    string
	NoTokenID     string
	EndDate       time.Time
	WinnerTokenID string
}

// Resolved devuelve true si ya se conoce el lado ganador.
func (m Market) Resolved() bool {
	return m.WinnerTokenID != ""
}

// Expired devuelve true si el mercado ya llegó a su fecha de cierre.
func (m Market) Expired(now time.Time) bool {
	return !m.EndDate.IsZero() && !now.Before(m.EndDate)
}

// TimeRemaining devuelve el tiempo hasta el cierre del mercado.
// Negativo si el mercado ya expiró.
func (m Market) TimeRemaining(now time.Time) time.Duration {
	return m.EndDate.Sub(now)
}

// SideOf devuelve "YES" o "NO" según el token, o "" si no pertenece al mercado.
func (m Market) SideOf(tokenID string) string {
	switch tokenID {
	case m.YesTokenID:
		return SideYes
	case m.NoTokenID:
		return SideNo
	}
	return ""
}

// OppositeToken devuelve el token del lado contrario.
func (m Market) OppositeToken(tokenID string) string {
	switch tokenID {
	case m.YesTokenID:
		return m.NoTokenID
	case m.NoTokenID:
		return m.YesTokenID
	}
	return ""
}

// HasToken devuelve true si el token pertenece a este mercado.
func (m Market) HasToken(tokenID string) bool {
	return tokenID == m.YesTokenID || tokenID == m.NoTokenID
}
