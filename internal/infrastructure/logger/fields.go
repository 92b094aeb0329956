package logger

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Field constructors for keys shared across the keg services.

func KegID(id uuid.UUID) zap.Field {
	return zap.String("keg_id", id.String())
}

func TokenID(id string) zap.Field {
	return zap.String("token_id", id)
}

func TxHash(hash string) zap.Field {
	return zap.String("tx_hash", hash)
}

func ActorID(id string) zap.Field {
	return zap.String("actor_id", id)
}
