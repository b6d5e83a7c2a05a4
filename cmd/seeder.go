package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/collabary/payments/internal/auth"
	accountmodel "github.com/collabary/payments/internal/core/datamodel/account"
	walletmodel "github.com/collabary/payments/internal/core/datamodel/wallet"
	"github.com/collabary/payments/internal/wallet"
	walletpg "github.com/collabary/payments/internal/wallet/postgres"
	"github.com/collabary/payments/pkg/logger"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with a demo payer and payee for development and testing purposes.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		db, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer db.Close()

		gormDB, err := initGormDB(db)
		if err != nil {
			log.Fatalf("failed to init orm: %v", err)
		}

		if clearData {
			for _, table := range []string{"webhook_events", "payouts", "collaboration_payments", "wallet_transactions", "wallets", "users"} {
				if err := gormDB.Exec("DELETE FROM " + table).Error; err != nil {
					log.Fatalf("failed to clear table %s: %v", table, err)
				}
			}
			fmt.Println("Cleared existing data")
		}

		password := "password"
		hash, _ := bcrypt.GenerateFromPassword([]byte(password), cfg.Security.BCryptCost)

		seedUsers := []accountmodel.User{
			{
				ID:                  uuid.New().String(),
				Email:               "brand@mail.com",
				Name:                "Demo Brand",
				Role:                accountmodel.RolePayer,
				PasswordHash:        string(hash),
				ExternalCustomerRef: "cus_demo_brand",
			},
			{
				ID:                 uuid.New().String(),
				Email:              "creator@mail.com",
				Name:               "Demo Creator",
				Role:               accountmodel.RolePayee,
				PasswordHash:       string(hash),
				ExternalAccountRef: "acct_demo_creator",
			},
		}

		authService := auth.NewService(cfg.Security.JWTSecret, cfg.Security.AccessTokenDuration, logger.LoggerWrapper())
		walletService := wallet.NewService(walletpg.NewWalletRepository(gormDB, cfg.Processor.Currency), logger.LoggerWrapper())

		now := time.Now().UTC()
		for i := range seedUsers {
			u := &seedUsers[i]

			var existing accountmodel.User
			if err := gormDB.Where("email = ?", u.Email).First(&existing).Error; err == nil {
				fmt.Printf("%s already exists, skipping insert\n", u.Email)
				*u = existing
			} else {
				u.OnboardingCompletedAt = &now
				if err := gormDB.Create(u).Error; err != nil {
					log.Fatalf("failed to insert user %s: %v", u.Email, err)
				}
				fmt.Printf("Seeded %s user: %s\n", u.Role, u.Email)
			}

			token, err := authService.IssueToken(u.ID, u.Role)
			if err != nil {
				log.Fatalf("failed to issue token for %s: %v", u.Email, err)
			}
			fmt.Printf("  token: %s\n", token)
		}

		// fund the creator so payouts can be exercised right away
		creator := seedUsers[1]
		if _, err := walletService.Credit(wallet.EntryParams{
			UserID:        creator.ID,
			Amount:        90000,
			Kind:          walletmodel.TypePaymentReleased,
			ReferenceType: walletmodel.ReferencePayment,
			ReferenceID:   uuid.New().String(),
			Description:   "seeded demo earnings",
		}); err != nil {
			log.Fatalf("failed to fund creator wallet: %v", err)
		}
		fmt.Printf("Funded creator wallet: %s\n", creator.Email)
	},
}
