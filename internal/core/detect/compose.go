package detect

import (
	"context"
	"io/fs"
	"strings"

	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"
	"gopkg.in/yaml.v3"

	"github.com/ClayDesk/codeflowops-saas-sub001/internal/core/domain"
)

// composeFileNames are the compose file locations probed, in order.
var composeFileNames = []string{
	"docker-compose.yml",
	"docker-compose.yaml",
	"compose.yml",
	"compose.yaml",
}

// probeComposeDatabase inspects a compose file in the source tree for a
// database service. Projects that declare a mysql/mariadb/postgres service
// locally need the same engine provisioned when deployed. A missing or
// unparsable compose file contributes nothing.
func probeComposeDatabase(tree fs.FS) (domain.DatabaseRequirement, bool) {
	for _, name := range composeFileNames {
		data, err := fs.ReadFile(tree, name)
		if err != nil {
			continue
		}
		if req, ok := composeDatabaseFromYAML(string(data)); ok {
			return req, true
		}
	}
	return domain.DatabaseRequirement{}, false
}

func composeDatabaseFromYAML(content string) (domain.DatabaseRequirement, bool) {
	project, err := loadComposeProject(content)
	if err != nil {
		return domain.DatabaseRequirement{}, false
	}

	for _, svc := range project.Services {
		engine := databaseEngineForImage(svc.Image)
		if engine == domain.DatabaseEngineNone {
			continue
		}
		return domain.DatabaseRequirement{
			Engine:   engine,
			Required: true,
		}, true
	}
	return domain.DatabaseRequirement{}, false
}

// loadComposeProject parses compose YAML in-memory using compose-go.
func loadComposeProject(content string) (*types.Project, error) {
	var dict map[string]interface{}
	if err := yaml.Unmarshal([]byte(content), &dict); err != nil {
		return nil, err
	}

	return loader.LoadWithContext(context.Background(), types.ConfigDetails{
		ConfigFiles: []types.ConfigFile{
			{
				Content: []byte(content),
				Config:  dict,
			},
		},
	}, func(opts *loader.Options) {
		opts.SetProjectName("detect-probe", false)
		opts.SkipValidation = true
		opts.SkipInterpolation = true
		opts.SkipNormalization = true
		opts.SkipExtends = true
	})
}

// databaseEngineForImage maps a service image reference to a managed engine.
func databaseEngineForImage(image string) domain.DatabaseEngine {
	image = strings.ToLower(image)
	// Strip registry/namespace and tag, keep the repository short name.
	if idx := strings.LastIndex(image, "/"); idx >= 0 {
		image = image[idx+1:]
	}
	if idx := strings.Index(image, ":"); idx >= 0 {
		image = image[:idx]
	}

	switch image {
	case "mysql", "mariadb", "percona":
		return domain.DatabaseEngineMySQL
	case "postgres", "postgresql":
		return domain.DatabaseEnginePostgres
	default:
		return domain.DatabaseEngineNone
	}
}
