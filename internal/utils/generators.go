package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

func GenerateOrderID() string {
	timestamp := time.Now().Unix()
	randomNum, _ := rand.Int(rand.Reader, big.NewInt(999999))
	return fmt.Sprintf("ord_%d_%06d", timestamp, randomNum.Int64())
}

func GenerateSessionID() string {
	return "sess_" + uuid.New().String()
}

func GenerateTicketID() string {
	return uuid.New().String()
}
