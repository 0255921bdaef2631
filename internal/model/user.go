package model

// User is a ledger account holding a prepaid balance.
type User struct {
	UserID  string  `json:"user_id"`
	Balance float64 `json:"balance"`
}

// UserCreateRequest is the body accepted by POST /api/users.
type UserCreateRequest struct {
	UserID string `json:"user_id"`
}

// LedgerUserCreate is the body sent to the ledger's POST /users.
type LedgerUserCreate struct {
	UserID  string  `json:"user_id"`
	Balance float64 `json:"balance"`
}

// TopUpRequest is the body of a top-up, both inbound and to the ledger.
// Amount is a pointer so a missing field can be told apart from zero.
type TopUpRequest struct {
	UserID string   `json:"user_id"`
	Amount *float64 `json:"amount"`
}
