package amqp

import (
	"encoding/json"
	"time"
)

// TransferSettlementMessage asks the settlement worker to poll the payments
// network for one transfer. It carries identifiers only; the worker reads the
// transaction from the database before acting.
type TransferSettlementMessage struct {
	TransactionID string    `json:"transactionId"`
	TransferURL   string    `json:"transferUrl"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewTransferSettlementMessage(transactionID, transferURL string) *TransferSettlementMessage {
	return &TransferSettlementMessage{
		TransactionID: transactionID,
		TransferURL:   transferURL,
		Timestamp:     time.Now(),
	}
}

func (m *TransferSettlementMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func TransferSettlementMessageFromJSON(data []byte) (*TransferSettlementMessage, error) {
	var msg TransferSettlementMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
