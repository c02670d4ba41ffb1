package redis

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

type Db struct {
	RedisClient *redis.Client
}

// ConnectRedis establishes a connection to the Redis server configured via
// REDIS_HOST / REDIS_PORT / REDIS_PASSWORD / REDIS_DB.
func ConnectRedis() *Db {
	dbIndex, _ := strconv.Atoi(os.Getenv("REDIS_DB"))

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", os.Getenv("REDIS_HOST"), os.Getenv("REDIS_PORT")),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       dbIndex,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}

	fmt.Println("Connected to Redis successfully!")
	return &Db{RedisClient: client}
}

// Stop gracefully closes the Redis connection
func (db *Db) Stop() {
	if db.RedisClient != nil {
		if err := db.RedisClient.Close(); err != nil {
			log.Printf("Error closing Redis connection: %v", err)
		} else {
			fmt.Println("Redis connection closed successfully!")
		}
	}
}
