package circulation

import (
	"time"

	"github.com/google/uuid"

	"circulate/internal/circulation"
)

type holdResponse struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	PickupToken   string    `json:"pickup_token"`
	ExpiresAt     time.Time `json:"expires_at"`
}

type waitlistResponse struct {
	Position             int   `json:"position"`
	EstimatedWaitSeconds int64 `json:"estimated_wait_seconds"`
}

type borrowResponse struct {
	Outcome  string            `json:"outcome"` // "hold" or "waitlisted"
	Hold     *holdResponse     `json:"hold,omitempty"`
	Waitlist *waitlistResponse `json:"waitlist,omitempty"`
}

func toBorrowResponse(result *circulation.BorrowResult) borrowResponse {
	if result.Hold != nil {
		return borrowResponse{
			Outcome: "hold",
			Hold: &holdResponse{
				TransactionID: result.Hold.TransactionID,
				PickupToken:   result.Hold.PickupToken,
				ExpiresAt:     result.Hold.ExpiresAt,
			},
		}
	}

	return borrowResponse{
		Outcome: "waitlisted",
		Waitlist: &waitlistResponse{
			Position:             result.Waitlist.Position,
			EstimatedWaitSeconds: int64(result.Waitlist.EstimatedWait / time.Second),
		},
	}
}

type issueResponse struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	IssuedAt      time.Time `json:"issued_at"`
	DueAt         time.Time `json:"due_at"`
	ReturnToken   string    `json:"return_token"`
}

func toIssueResponse(result *circulation.IssueResult) issueResponse {
	return issueResponse{
		TransactionID: result.TransactionID,
		IssuedAt:      result.IssuedAt,
		DueAt:         result.DueAt,
		ReturnToken:   result.ReturnToken,
	}
}

type returnResponse struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	ReturnedAt    time.Time `json:"returned_at"`
	FineAmount    int64     `json:"fine_amount"`
}

func toReturnResponse(result *circulation.ReturnResult) returnResponse {
	return returnResponse{
		TransactionID: result.TransactionID,
		ReturnedAt:    result.ReturnedAt,
		FineAmount:    result.FineAmount,
	}
}

type fineResponse struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	FineAmount    int64     `json:"fine_amount"`
}

type transactionResponse struct {
	ID            uuid.UUID          `json:"id"`
	TitleID       uuid.UUID          `json:"title_id"`
	RequesterID   uuid.UUID          `json:"requester_id"`
	Status        circulation.Status `json:"status"`
	HoldCreatedAt time.Time          `json:"hold_created_at"`
	HoldExpiresAt *time.Time         `json:"hold_expires_at,omitempty"`
	IssuedAt      *time.Time         `json:"issued_at,omitempty"`
	DueAt         *time.Time         `json:"due_at,omitempty"`
	ReturnedAt    *time.Time         `json:"returned_at,omitempty"`
	FineAmount    int64              `json:"fine_amount"`
	FinePaid      bool               `json:"fine_paid"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     *time.Time         `json:"updated_at,omitempty"`
}

func toTransactionResponse(tx *circulation.Transaction) transactionResponse {
	return transactionResponse{
		ID:            tx.ID,
		TitleID:       tx.TitleID,
		RequesterID:   tx.RequesterID,
		Status:        tx.Status,
		HoldCreatedAt: tx.HoldCreatedAt,
		HoldExpiresAt: tx.HoldExpiresAt,
		IssuedAt:      tx.IssuedAt,
		DueAt:         tx.DueAt,
		ReturnedAt:    tx.ReturnedAt,
		FineAmount:    tx.FineAmount,
		FinePaid:      tx.FinePaid,
		CreatedAt:     tx.CreatedAt,
		UpdatedAt:     tx.UpdatedAt,
	}
}

func toTransactionResponseList(txs []*circulation.Transaction) []transactionResponse {
	resp := make([]transactionResponse, len(txs))
	for i, tx := range txs {
		resp[i] = toTransactionResponse(tx)
	}

	return resp
}
