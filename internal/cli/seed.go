package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"quiz-xp-service/internal/app"
	"quiz-xp-service/internal/config"
	"quiz-xp-service/internal/domain"
	"quiz-xp-service/internal/infra/postgres"
	"quiz-xp-service/internal/logger"
)

// SeedFile is the YAML layout accepted by the seed command and quiz.seed_file.
type SeedFile struct {
	Users      []SeedUser     `yaml:"users"`
	Categories []SeedCategory `yaml:"categories"`
}

type SeedUser struct {
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
	Admin bool   `yaml:"admin"`
}

type SeedCategory struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Color       string         `yaml:"color"`
	Icon        string         `yaml:"icon"`
	Active      *bool          `yaml:"active"`
	Questions   []SeedQuestion `yaml:"questions"`
}

type SeedQuestion struct {
	Text        string       `yaml:"text"`
	Difficulty  string       `yaml:"difficulty"`
	Explanation string       `yaml:"explanation"`
	Answers     []SeedAnswer `yaml:"answers"`
}

type SeedAnswer struct {
	Text    string `yaml:"text"`
	Correct bool   `yaml:"correct"`
}

// NewSeedCmd loads a catalog file into Postgres.
func NewSeedCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load categories, questions and users into the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger.Init(cfg.Log.Level, cfg.Log.Pretty)
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}
			if file == "" {
				file = cfg.Quiz.SeedFile
			}
			seed, err := loadSeed(file)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			db := postgres.OpenDB(cfg.Postgres.URL)
			defer db.Close()
			if err := runMigrations(ctx, db); err != nil {
				return err
			}
			pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
			if err != nil {
				return err
			}
			defer pool.Close()

			store := postgres.NewStore(db)
			return applySeed(ctx, store, app.NewCatalogService(store, postgres.NewCatalog(pool), nil), seed)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "seed YAML file (defaults to quiz.seed_file, then the built-in sample)")
	return cmd
}

func loadSeed(path string) (SeedFile, error) {
	if path == "" {
		return sampleCatalog(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return SeedFile{}, err
	}
	var seed SeedFile
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return SeedFile{}, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	return seed, nil
}

// applySeed skips users and categories that already exist so reruns are harmless.
func applySeed(ctx context.Context, store app.Store, catalog *app.CatalogService, seed SeedFile) error {
	for _, u := range seed.Users {
		user := domain.User{Name: u.Name, Email: u.Email, Admin: u.Admin}
		err := store.RunInTx(ctx, func(ctx context.Context, repo app.Repository) error {
			return repo.CreateUser(ctx, &user)
		})
		if errors.Is(err, domain.ErrDuplicate) {
			log.Info().Str("user", u.Name).Msg("seed user exists, skipping")
			continue
		}
		if err != nil {
			return fmt.Errorf("seed user %s: %w", u.Name, err)
		}
	}

	var categories, questions int
	for _, sc := range seed.Categories {
		active := sc.Active == nil || *sc.Active
		category, err := catalog.CreateCategory(ctx, domain.Category{
			Name:        sc.Name,
			Description: sc.Description,
			Color:       sc.Color,
			Icon:        sc.Icon,
			Active:      active,
		})
		if errors.Is(err, domain.ErrDuplicate) {
			log.Info().Str("category", sc.Name).Msg("seed category exists, skipping")
			continue
		}
		if err != nil {
			return fmt.Errorf("seed category %s: %w", sc.Name, err)
		}
		categories++

		for _, sq := range sc.Questions {
			difficulty, err := domain.ParseDifficulty(sq.Difficulty)
			if err != nil {
				return err
			}
			q := domain.Question{
				CategoryID:  category.ID,
				Text:        sq.Text,
				Difficulty:  difficulty,
				Explanation: sq.Explanation,
				Active:      true,
			}
			for _, a := range sq.Answers {
				q.Answers = append(q.Answers, domain.Answer{Text: a.Text, Correct: a.Correct})
			}
			if _, err := catalog.CreateQuestion(ctx, q); err != nil {
				return fmt.Errorf("seed question %q: %w", sq.Text, err)
			}
			questions++
		}
	}
	log.Info().Int("users", len(seed.Users)).Int("categories", categories).Int("questions", questions).Msg("seed applied")
	return nil
}

func correctFirst(correct string, wrong ...string) []SeedAnswer {
	answers := []SeedAnswer{{Text: correct, Correct: true}}
	for _, w := range wrong {
		answers = append(answers, SeedAnswer{Text: w})
	}
	return answers
}

// sampleCatalog backs memory mode and seeding without a file.
func sampleCatalog() SeedFile {
	return SeedFile{
		Users: []SeedUser{
			{Name: "Demo Player", Email: "demo@example.com"},
			{Name: "Quiz Admin", Email: "admin@example.com", Admin: true},
		},
		Categories: []SeedCategory{
			{
				Name:        "Science",
				Description: "Physics, chemistry and biology basics",
				Color:       "#2E7D32",
				Icon:        "flask",
				Questions: []SeedQuestion{
					{Text: "What is the chemical symbol for gold?", Difficulty: "easy", Answers: correctFirst("Au", "Ag", "Gd", "Go")},
					{Text: "Which planet is closest to the sun?", Difficulty: "easy", Answers: correctFirst("Mercury", "Venus", "Mars")},
					{Text: "What gas do plants absorb for photosynthesis?", Difficulty: "easy", Answers: correctFirst("Carbon dioxide", "Oxygen", "Nitrogen")},
					{Text: "What is the powerhouse of the cell?", Difficulty: "medium", Explanation: "Mitochondria produce most of the cell's ATP.", Answers: correctFirst("Mitochondria", "Nucleus", "Ribosome", "Golgi apparatus")},
					{Text: "What is the speed of light in vacuum, roughly?", Difficulty: "medium", Answers: correctFirst("300,000 km/s", "150,000 km/s", "30,000 km/s")},
					{Text: "Which particle has no electric charge?", Difficulty: "medium", Answers: correctFirst("Neutron", "Proton", "Electron")},
					{Text: "What is the most abundant element in the universe?", Difficulty: "hard", Answers: correctFirst("Hydrogen", "Helium", "Oxygen", "Carbon")},
				},
			},
			{
				Name:        "Mathematics",
				Description: "Arithmetic, algebra and geometry",
				Color:       "#1565C0",
				Icon:        "calculator",
				Questions: []SeedQuestion{
					{Text: "What is 7 x 8?", Difficulty: "easy", Answers: correctFirst("56", "54", "64", "48")},
					{Text: "What is the square root of 81?", Difficulty: "easy", Answers: correctFirst("9", "8", "7")},
					{Text: "How many degrees are in a triangle?", Difficulty: "easy", Answers: correctFirst("180", "90", "360")},
					{Text: "What is 2 to the power of 10?", Difficulty: "medium", Answers: correctFirst("1024", "512", "2048")},
					{Text: "Solve for x: 3x + 5 = 20", Difficulty: "medium", Explanation: "Subtract 5, then divide by 3.", Answers: correctFirst("5", "3", "15", "25/3")},
					{Text: "What is the derivative of x squared?", Difficulty: "hard", Answers: correctFirst("2x", "x", "x squared", "2")},
				},
			},
			{
				Name:        "History",
				Description: "Events and people that shaped the world",
				Color:       "#8D6E63",
				Icon:        "landmark",
				Questions: []SeedQuestion{
					{Text: "In which year did World War II end?", Difficulty: "easy", Answers: correctFirst("1945", "1944", "1939", "1950")},
					{Text: "Who was the first president of the United States?", Difficulty: "easy", Answers: correctFirst("George Washington", "Thomas Jefferson", "Abraham Lincoln")},
					{Text: "Which empire built Machu Picchu?", Difficulty: "medium", Answers: correctFirst("Inca", "Aztec", "Maya")},
					{Text: "In which year did the Berlin Wall fall?", Difficulty: "medium", Answers: correctFirst("1989", "1991", "1985")},
					{Text: "Who wrote the Code of Laws in ancient Babylon?", Difficulty: "hard", Answers: correctFirst("Hammurabi", "Nebuchadnezzar", "Sargon")},
				},
			},
		},
	}
}
