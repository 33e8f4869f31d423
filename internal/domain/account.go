package domain

// Account es el estado de la cuenta de trading.
// Invariante: ReservedBalance ≤ Balance en todo momento. Solo los componentes
// de lifecycle la mutan, y siempre bajo el guard del token correspondiente.
type Account struct {
	Balance         float64 // fondos operables
	ReservedBalance float64 // fondos apartados para operaciones en vuelo
	SavedProfit     float64 // profit retirado por el compounding, nunca se re-arriesga
}

// Available devuelve el balance disponible para nuevas operaciones.
func (a *Account) Available() float64 {
	return a.Balance - a.ReservedBalance
}

// Reserve aparta amount para una operación en vuelo. Devuelve false si el
// monto excede el balance disponible — la operación no debe intentarse.
func (a *Account) Reserve(amount float64) bool {
	if amount <= 0 || amount > a.Available() {
		return false
	}
	a.ReservedBalance += amount
	return true
}

// Release devuelve una reserva, con o sin éxito de la operación.
func (a *Account) Release(amount float64) {
	a.ReservedBalance -= amount
	if a.ReservedBalance < 0 {
		a.ReservedBalance = 0
	}
}

// Debit descuenta fondos gastados en una compra.
func (a *Account) Debit(amount float64) {
	a.Balance -= amount
}

// Credit añade fondos producto de una venta o resolución.
func (a *Account) Credit(amount float64) {
	a.Balance += amount
}

// Equity devuelve el valor total de la cuenta (balance + profit retirado).
func (a *Account) Equity() float64 {
	return a.Balance + a.SavedProfit
}
