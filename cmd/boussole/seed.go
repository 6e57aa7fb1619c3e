package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/mlaroche/boussole/internal/authz"
	"github.com/mlaroche/boussole/internal/config"
	"github.com/mlaroche/boussole/internal/hierarchy"
	"github.com/mlaroche/boussole/internal/identity"
	"github.com/mlaroche/boussole/internal/okr"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed a demo organization with users and OKRs",
	RunE:  runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

const demoPassword = "boussole-demo"

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	accountStore := identity.NewStore(pool, cfg.Sessions.TTL)
	unitStore := hierarchy.NewStore(pool)
	recordStore := okr.NewStore(pool)

	accounts := identity.NewService(accountStore)
	units := hierarchy.NewService(unitStore)
	okrs := okr.NewService(recordStore, unitStore, accountStore)

	// Check if seed has already run.
	existing, err := units.ListOrganizations(ctx)
	if err != nil {
		return fmt.Errorf("checking existing organizations: %w", err)
	}
	if len(existing) > 0 {
		slog.Info("demo data already exists, skipping seed")
		return nil
	}

	org, err := units.CreateOrganization(ctx, hierarchy.CreateOrganizationInput{
		Name:        "Compass Labs",
		Description: "Demo organization",
	})
	if err != nil {
		return fmt.Errorf("creating organization: %w", err)
	}
	slog.Info("created organization", "name", org.Name, "id", org.ID)

	eng, err := units.CreateDepartment(ctx, hierarchy.CreateDepartmentInput{
		Name:           "Engineering",
		Description:    "Builds and runs the product",
		OrganizationID: org.ID,
	})
	if err != nil {
		return fmt.Errorf("creating department: %w", err)
	}

	product, err := units.CreateDepartment(ctx, hierarchy.CreateDepartmentInput{
		Name:           "Product",
		Description:    "Decides what to build",
		OrganizationID: org.ID,
	})
	if err != nil {
		return fmt.Errorf("creating department: %w", err)
	}

	platform, err := units.CreateTeam(ctx, hierarchy.CreateTeamInput{
		Name:         "Platform",
		Description:  "Infrastructure and backend services",
		DepartmentID: eng.ID,
	})
	if err != nil {
		return fmt.Errorf("creating team: %w", err)
	}

	design, err := units.CreateTeam(ctx, hierarchy.CreateTeamInput{
		Name:         "Design",
		Description:  "Product design and research",
		DepartmentID: product.ID,
	})
	if err != nil {
		return fmt.Errorf("creating team: %w", err)
	}

	register := func(username, role string, deptID, teamID *int64) (*identity.User, error) {
		u, err := accounts.Register(ctx, identity.RegisterInput{
			Username:     username,
			Email:        username + "@compass-labs.test",
			Password:     demoPassword,
			Role:         role,
			DepartmentID: deptID,
			TeamID:       teamID,
		})
		if err != nil {
			return nil, fmt.Errorf("registering %s: %w", username, err)
		}
		slog.Info("registered user", "username", u.Username, "role", u.Role)
		return u, nil
	}

	admin, err := register("admin", string(authz.RoleAdmin), nil, nil)
	if err != nil {
		return err
	}
	if _, err := register("marion", string(authz.RoleManager), &eng.ID, nil); err != nil {
		return err
	}
	lea, err := register("lea", string(authz.RoleTeamLead), &eng.ID, &platform.ID)
	if err != nil {
		return err
	}
	noah, err := register("noah", string(authz.RoleUser), &eng.ID, &platform.ID)
	if err != nil {
		return err
	}
	iris, err := register("iris", string(authz.RoleUser), &product.ID, &design.ID)
	if err != nil {
		return err
	}

	leaActor := &authz.Actor{
		UserID:       lea.ID,
		Username:     lea.Username,
		Role:         lea.Role,
		DepartmentID: lea.DepartmentID,
		TeamID:       lea.TeamID,
	}
	irisActor := &authz.Actor{
		UserID:       iris.ID,
		Username:     iris.Username,
		Role:         iris.Role,
		DepartmentID: iris.DepartmentID,
		TeamID:       iris.TeamID,
	}

	start := time.Now().Format("2006-01-02")
	end := time.Now().AddDate(0, 3, 0).Format("2006-01-02")

	inProgress := string(okr.StatusInProgress)
	forty := 40.0

	demoOKRs := []struct {
		actor *authz.Actor
		input okr.CreateInput
	}{
		{
			actor: leaActor,
			input: okr.CreateInput{
				Title:     "Cut API p99 latency in half",
				Objective: "Make the platform feel instant",
				KeyResults: []string{
					"p99 below 200ms on the ten busiest endpoints",
					"Zero timeouts in the weekly load test",
				},
				TeamID:         platform.ID,
				AssignedUserID: noah.ID,
				StartDate:      start,
				EndDate:        end,
				Progress:       &forty,
				Status:         &inProgress,
			},
		},
		{
			actor: leaActor,
			input: okr.CreateInput{
				Title:     "Automate the release pipeline",
				Objective: "Ship every merge to production without manual steps",
				KeyResults: []string{
					"Deploys triggered from CI on every merge",
					"Rollback takes one command",
					"Release notes generated automatically",
				},
				TeamID:         platform.ID,
				AssignedUserID: lea.ID,
				StartDate:      start,
				EndDate:        end,
			},
		},
		{
			actor: irisActor,
			input: okr.CreateInput{
				Title:     "Refresh the onboarding flow",
				Objective: "New users reach their first OKR in under five minutes",
				KeyResults: []string{
					"Usability test with eight participants",
					"Redesigned first-run screens shipped",
				},
				TeamID:         design.ID,
				AssignedUserID: iris.ID,
				StartDate:      start,
				EndDate:        end,
			},
		},
	}

	for _, d := range demoOKRs {
		rec, err := okrs.Create(ctx, d.actor, d.input)
		if err != nil {
			return fmt.Errorf("creating okr %q: %w", d.input.Title, err)
		}
		slog.Info("created okr", "title", rec.Title, "team", rec.TeamName, "assignee", rec.AssignedUsername)
	}

	fmt.Printf("\n=== Demo Data Seeded ===\n")
	fmt.Printf("Organization: %s\n", org.Name)
	fmt.Printf("Users:        admin (Admin), marion (Manager), lea (Team Lead), noah, iris\n")
	fmt.Printf("Password:     %s (all users)\n", demoPassword)
	fmt.Printf("\nTry it:\n")
	fmt.Printf("  curl -X POST localhost:%d/api/v1/auth/login -d '{\"username\":\"%s\",\"password\":\"%s\"}'\n", cfg.Server.Port, admin.Username, demoPassword)
	fmt.Printf("  curl -H 'Authorization: Bearer <token>' localhost:%d/api/v1/okrs\n", cfg.Server.Port)

	return nil
}
