package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"
)

type ConfigTestSuite struct {
	suite.Suite
	dir string
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (suite *ConfigTestSuite) SetupTest() {
	suite.dir = suite.T().TempDir()
}

func (suite *ConfigTestSuite) writeFile(name, content string) string {
	path := filepath.Join(suite.dir, name)
	suite.Require().NoError(os.WriteFile(path, []byte(content), 0o600))

	return path
}

func (suite *ConfigTestSuite) TestLoadDeploySpecValid() {
	path := suite.writeFile("deploy.yaml", `
name: momentum
engine: sma_cross
provider: sim
symbol: AAPL
granularity: 1d
lookback: 30
allocation_fraction: 0.25
mode: paper
params:
 fast_period: "10"
`)

	spec, err := LoadDeploySpec(path)
	suite.Require().NoError(err)
	suite.Equal("momentum", spec.Name)
	suite.True(spec.Allocation.IsFraction)
	suite.InDelta(0.25, spec.Allocation.Fraction, 1e-9)
}

func (suite *ConfigTestSuite) TestLoadDeploySpecRejectsBothAllocationForms() {
	path := suite.writeFile("deploy.yaml", `
name: momentum
engine: sma_cross
provider: sim
symbol: AAPL
granularity: 1d
lookback: 30
allocation_fraction: 0.25
allocation_absolute: 1000
mode: paper
`)

	_, err := LoadDeploySpec(path)
	suite.Error(err)
}

func (suite *ConfigTestSuite) TestLoadDeploySpecRejectsMissingRequiredField() {
	path := suite.writeFile("deploy.yaml", `
engine: sma_cross
provider: sim
symbol: AAPL
granularity: 1d
lookback: 30
allocation_fraction: 0.25
mode: paper
`)

	_, err := LoadDeploySpec(path)
	suite.Error(err)
}

func (suite *ConfigTestSuite) TestLoadProcessConfigAppliesDefaultsForMissingFields() {
	path := suite.writeFile("strateq.toml", `
[log]
level = "debug"
`)

	cfg, err := LoadProcessConfig(path)
	suite.Require().NoError(err)
	suite.Equal("debug", cfg.Log.Level)
	suite.Equal(":8080", cfg.HTTP.ListenAddr)
	suite.True(cfg.Metrics.Enabled)
}

func (suite *ConfigTestSuite) TestLoadProcessConfigMissingFileReturnsDefaults() {
	cfg, err := LoadProcessConfig(filepath.Join(suite.dir, "does-not-exist.toml"))
	suite.Require().NoError(err)
	suite.Equal(DefaultProcessConfig(), cfg)
}
