package aws

import (
	"context"
	"fmt"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"

	"github.com/ClayDesk/codeflowops-saas-sub001/internal/core/domain"
	"github.com/ClayDesk/codeflowops-saas-sub001/internal/shell/cloud"
)

const (
	dbAllocatedStorageGB = 20

	// dbEndpointAttempts bounds the wait for a fresh instance to expose its
	// endpoint. RDS instances routinely take several minutes.
	dbEndpointAttempts = 40
	dbEndpointInterval = 15 * time.Second
)

// databaseService implements cloud.ManagedDatabase on RDS.
type databaseService struct{ p *Provider }

func (s *databaseService) EnsureInstance(ctx context.Context, provision *domain.DatabaseProvision, networkID string) (string, int, error) {
	id := provision.ResourceName

	_, err := s.p.rds.CreateDBInstance(ctx, &rds.CreateDBInstanceInput{
		DBInstanceIdentifier: awssdk.String(id),
		Engine:               awssdk.String(rdsEngine(provision.Engine)),
		EngineVersion:        awssdk.String(provision.EngineVersion),
		DBInstanceClass:      awssdk.String(provision.InstanceClass),
		DBName:               awssdk.String(provision.DatabaseName),
		MasterUsername:       awssdk.String(provision.Credentials.Username),
		MasterUserPassword:   awssdk.String(provision.Credentials.Password),
		AllocatedStorage:     awssdk.Int32(dbAllocatedStorageGB),
		PubliclyAccessible:   awssdk.Bool(false),
		Tags: []rdstypes.Tag{
			{Key: awssdk.String("ManagedBy"), Value: awssdk.String(managedTag)},
		},
	})
	if err != nil {
		if !cloud.IsExists(err) {
			return "", 0, fmt.Errorf("create db instance %s: %w", id, err)
		}
		s.p.logger.Info("database instance already exists, reusing", "instance", id)
	} else {
		s.p.logger.Info("database instance created", "instance", id, "engine", provision.Engine)
	}

	return s.waitForEndpoint(ctx, id)
}

// waitForEndpoint polls the instance until it reports an endpoint or the
// attempt budget runs out.
func (s *databaseService) waitForEndpoint(ctx context.Context, id string) (string, int, error) {
	for attempt := 0; attempt < dbEndpointAttempts; attempt++ {
		out, err := s.p.rds.DescribeDBInstances(ctx, &rds.DescribeDBInstancesInput{
			DBInstanceIdentifier: awssdk.String(id),
		})
		if err != nil {
			return "", 0, fmt.Errorf("describe db instance %s: %w", id, err)
		}
		if len(out.DBInstances) > 0 {
			inst := out.DBInstances[0]
			if inst.Endpoint != nil && inst.Endpoint.Address != nil {
				return awssdk.ToString(inst.Endpoint.Address), int(awssdk.ToInt32(inst.Endpoint.Port)), nil
			}
		}

		select {
		case <-ctx.Done():
			return "", 0, ctx.Err()
		case <-time.After(dbEndpointInterval):
		}
	}
	return "", 0, fmt.Errorf("db instance %s did not expose an endpoint in time", id)
}

func rdsEngine(engine domain.DatabaseEngine) string {
	if engine == domain.DatabaseEnginePostgres {
		return "postgres"
	}
	return "mysql"
}
