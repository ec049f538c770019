// seed populates a development database with fake users and posts.
package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/brianvoe/gofakeit/v7"
	"golang.org/x/crypto/bcrypt"

	"github.com/emberfeed/backend/internal/database"
	"github.com/emberfeed/backend/internal/models"
	"github.com/joho/godotenv"
)

var communities = []string{
	"aquariums", "homelab", "sourdough", "mechanicalkeyboards",
	"urbansketching", "trailrunning", "synthdiy",
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using system environment variables")
	}

	command := "dev"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	switch command {
	case "dev":
		seedDev()
	case "clean":
		cleanSeed()
	default:
		fmt.Println("Usage: seed [dev|clean]")
		fmt.Println("  dev   - Seed development database with fake users and posts")
		fmt.Println("  clean - Remove all seeded rows")
		os.Exit(1)
	}
}

func seedDev() {
	log.Println("Seeding development database...")

	if err := database.Initialize(); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// One known login for manual testing
	hash, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
	hashStr := string(hash)
	users := []models.User{{
		Email:        "dev@emberfeed.local",
		Username:     "dev",
		DisplayName:  "Dev User",
		PasswordHash: &hashStr,
	}}

	for i := 0; i < 25; i++ {
		username := strings.ToLower(gofakeit.Username())
		users = append(users, models.User{
			Email:        gofakeit.Email(),
			Username:     fmt.Sprintf("%s%d", username, gofakeit.Number(1, 999)),
			DisplayName:  gofakeit.Name(),
			PasswordHash: &hashStr,
			Karma:        gofakeit.Number(0, 5000),
		})
	}

	created := 0
	for i := range users {
		if err := database.DB.Create(&users[i]).Error; err != nil {
			log.Printf("Skipping user %s: %v", users[i].Username, err)
			continue
		}
		created++
	}
	log.Printf("Created %d users", created)

	posts := 0
	for _, user := range users {
		for i := 0; i < gofakeit.Number(1, 6); i++ {
			post := models.Post{
				UserID:    user.ID,
				Community: communities[gofakeit.Number(0, len(communities)-1)],
				Title:     gofakeit.Sentence(gofakeit.Number(4, 10)),
				Body:      gofakeit.Paragraph(1, 3, 12, " "),
				Score:     gofakeit.Number(-5, 900),
			}
			if gofakeit.Bool() {
				post.URL = gofakeit.URL()
			}
			if err := database.DB.Create(&post).Error; err != nil {
				log.Printf("Skipping post: %v", err)
				continue
			}
			posts++
		}
	}
	log.Printf("Created %d posts", posts)
	log.Println("Done. Log in as dev@emberfeed.local / password123")
}

func cleanSeed() {
	log.Println("Removing all rows...")

	if err := database.Initialize(); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	if err := database.DB.Unscoped().Where("1 = 1").Delete(&models.Post{}).Error; err != nil {
		log.Fatalf("Failed to delete posts: %v", err)
	}
	if err := database.DB.Unscoped().Where("1 = 1").Delete(&models.User{}).Error; err != nil {
		log.Fatalf("Failed to delete users: %v", err)
	}
	log.Println("Done")
}
