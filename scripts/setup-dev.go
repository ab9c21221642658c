//go:build ignore

// Development environment bootstrapper. Writes a docker compose file for the
// engine's backing services and a starter .env, then prints next steps.
//
// Usage: go run scripts/setup-dev.go
package main

import (
	"fmt"
	"os"
)

const composeFile = `services:
  mysql:
    image: mysql:8.0
    environment:
      MYSQL_ROOT_PASSWORD: password
      MYSQL_DATABASE: ticket_engine
    ports:
      - "3306:3306"
    volumes:
      - mysql-data:/var/lib/mysql

  redis:
    image: redis:7-alpine
    ports:
      - "6379:6379"

  kafka:
    image: bitnami/kafka:3.6
    ports:
      - "29092:29092"
    environment:
      KAFKA_CFG_NODE_ID: 0
      KAFKA_CFG_PROCESS_ROLES: controller,broker
      KAFKA_CFG_CONTROLLER_QUORUM_VOTERS: 0@kafka:9093
      KAFKA_CFG_LISTENERS: PLAINTEXT://:9092,CONTROLLER://:9093,EXTERNAL://:29092
      KAFKA_CFG_ADVERTISED_LISTENERS: PLAINTEXT://kafka:9092,EXTERNAL://localhost:29092
      KAFKA_CFG_LISTENER_SECURITY_PROTOCOL_MAP: CONTROLLER:PLAINTEXT,PLAINTEXT:PLAINTEXT,EXTERNAL:PLAINTEXT
      KAFKA_CFG_CONTROLLER_LISTENER_NAMES: CONTROLLER

volumes:
  mysql-data:
`

const envTemplate = `SERVER_PORT=:8085
DB_HOST=localhost
DB_PORT=3306
DB_USER=root
DB_PASS=password
DB_NAME=ticket_engine
REDIS_ADDR=localhost:6379
KAFKA_BROKERS=localhost:29092
KAFKA_MOCK_MODE=true
QR_SIGNING_SECRET=change-me-dev-only
TICKET_LOCK_TTL=10m
TICKET_SWEEP_INTERVAL=1m
ALLOW_UNVERIFIED_SCAN=false
RATE_LIMIT_PER_MINUTE=60
`

func main() {
	writeIfMissing("docker-compose.dev.yml", composeFile)
	writeIfMissing(".env", envTemplate)

	fmt.Println("Development environment ready. Next steps:")
	fmt.Println("  1. docker compose -f docker-compose.dev.yml up -d")
	fmt.Println("  2. edit .env (set QR_SIGNING_SECRET)")
	fmt.Println("  3. go run .")
	fmt.Println("  4. curl -X POST localhost:8085/api/v1/admin/seed -d '{\"ticket_count\":100}'")
}

func writeIfMissing(path, content string) {
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("%s already exists, leaving it alone\n", path)
		return
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write %s: %v\n", path, err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s\n", path)
}
