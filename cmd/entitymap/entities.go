package main

import "time"

// account is the demo aggregate. Its key is assigned by Save.
type account struct {
	ID        string    `column:"id,pk"`
	Email     string    `column:"email"`
	Balance   float64   `column:"balance,REAL"`
	Active    bool      `column:"active"`
	CreatedAt time.Time `column:"created_at"`
	Note      *string   `column:"note"`
}

func (account) TableName() string { return "demo_accounts" }

// auditEvent rows are bulk loaded through InsertStream.
type auditEvent struct {
	ID        string `column:"id,pk"`
	AccountID string `column:"account_id"`
	Seq       int    `column:"seq,INTEGER"`
	Action    string `column:"action"`
	Payload   []byte `column:"payload,BLOB"`
}

func (auditEvent) TableName() string { return "demo_audit_events" }
