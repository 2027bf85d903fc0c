package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-hclog"

	plugindomain "kilometers.ai/kmpkg/internal/core/domain/plugin"
	pluginports "kilometers.ai/kmpkg/internal/core/ports/plugin"
	"kilometers.ai/kmpkg/internal/fsutil"
)

// Operation names reported to the OperationRecorder
const (
	OpInstall   = "install"
	OpUninstall = "uninstall"
	OpReinstall = "reinstall"
)

// Operation results reported to the OperationRecorder
const (
	ResultOK      = "ok"
	ResultSkipped = "skipped"
	ResultError   = "error"
)

// LifecyclePaths holds the filesystem locations the lifecycle service works on
type LifecyclePaths struct {
	// PluginPath is the directory holding plugin archives
	PluginPath string
	// InstallPath is the root of the installed plugin directories
	InstallPath string
	// ConfigPath is the root of the relocated plugin config directories
	ConfigPath string
	// TempPath is the scratch directory used for extraction
	TempPath string
	// ArchiveExt is the archive file suffix, including the leading dot
	ArchiveExt string
}

// PluginLifecycleService installs, uninstalls and reinstalls archive-packaged plugins.
// It is not safe for concurrent use; callers serialize access to a registry.
type PluginLifecycleService struct {
	paths     LifecyclePaths
	extractor pluginports.ArchiveExtractor
	reader    pluginports.ManifestReader
	registry  pluginports.RegistryStore
	recorder  pluginports.OperationRecorder
	logger    hclog.Logger
}

// NewPluginLifecycleService creates a new plugin lifecycle service
func NewPluginLifecycleService(
	paths LifecyclePaths,
	extractor pluginports.ArchiveExtractor,
	reader pluginports.ManifestReader,
	registry pluginports.RegistryStore,
	recorder pluginports.OperationRecorder,
	logger hclog.Logger,
) *PluginLifecycleService {
	if paths.InstallPath == "" {
		paths.InstallPath = paths.PluginPath
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if recorder == nil {
		recorder = noopRecorder{}
	}

	return &PluginLifecycleService{
		paths:     paths,
		extractor: extractor,
		reader:    reader,
		registry:  registry,
		recorder:  recorder,
		logger:    logger,
	}
}

// Paths returns the locations the service operates on
func (s *PluginLifecycleService) Paths() LifecyclePaths {
	return s.paths
}

// Install installs the plugin archive <PluginPath>/<pluginName><ArchiveExt>.
// Installing a plugin whose id is already registered is a logged no-op.
func (s *PluginLifecycleService) Install(ctx context.Context, pluginName string) error {
	result, err := s.install(ctx, pluginName)
	s.record(OpInstall, result, err)
	return err
}

func (s *PluginLifecycleService) install(ctx context.Context, pluginName string) (string, error) {
	if !validPluginName(pluginName) {
		return ResultError, fmt.Errorf("%w: invalid plugin name %q", plugindomain.ErrArchiveNotFound, pluginName)
	}

	archivePath := s.archivePath(pluginName)
	s.logger.Info("installing plugin", "plugin", pluginName, "path", archivePath)

	if _, statErr := os.Stat(archivePath); statErr != nil {
		return ResultError, fmt.Errorf("%w: %s", plugindomain.ErrArchiveNotFound, archivePath)
	}

	if err := fsutil.ResetDir(s.paths.TempPath); err != nil {
		return ResultError, err
	}
	defer s.cleanupScratch()

	extractedDir := filepath.Join(s.paths.TempPath, pluginName)
	if err := s.extractor.Extract(ctx, archivePath, extractedDir); err != nil {
		return ResultError, err
	}

	manifest, err := s.reader.Read(extractedDir)
	if err != nil {
		return ResultError, err
	}
	if strings.HasSuffix(manifest.PluginID, s.paths.ArchiveExt) {
		return ResultError, plugindomain.ErrManifestField("plugin_id", "must not end with the archive extension "+s.paths.ArchiveExt)
	}
	descriptor := manifest.Descriptor()

	installed, err := s.registry.Read(ctx)
	if err != nil {
		return ResultError, err
	}

	if idx := installed.IndexOfID(descriptor.PluginID); idx >= 0 {
		if existing := installed[idx]; existing.PluginName != descriptor.PluginName {
			s.logger.Warn("plugin id already registered under another name, skipped the installation",
				"plugin", pluginName, "id", descriptor.PluginID, "registered_as", existing.PluginName)
		} else {
			s.logger.Info("plugin already installed, skipped the installation",
				"plugin", pluginName, "id", descriptor.PluginID)
		}
		return ResultSkipped, nil
	}

	// nothing has been placed yet, so a refusal here must not roll back
	if err := directoryOrMissing(s.installDir(descriptor.PluginID)); err != nil {
		return ResultError, err
	}
	if manifest.HasConfig() {
		if err := directoryOrMissing(s.configDir(descriptor.PluginID)); err != nil {
			return ResultError, err
		}
	}

	if err := s.placePayload(extractedDir, manifest); err != nil {
		s.rollback(descriptor)
		return ResultError, err
	}

	installed = append(installed, descriptor)
	if err := s.registry.Write(ctx, installed); err != nil {
		s.rollback(descriptor)
		return ResultError, err
	}
	s.recorder.SetInstalled(len(installed))

	s.logger.Info("successfully installed plugin", "plugin", pluginName, "id", descriptor.PluginID)
	return ResultOK, nil
}

// InstallAll installs every archive found in PluginPath in directory order.
// Directories (already installed plugins) are not processed.
func (s *PluginLifecycleService) InstallAll(ctx context.Context) error {
	return s.installAll(ctx, s.Install)
}

func (s *PluginLifecycleService) installAll(ctx context.Context, install func(context.Context, string) error) error {
	names, err := s.Available(ctx)
	if err != nil {
		return err
	}

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := install(ctx, name); err != nil {
			return &plugindomain.OperationError{Op: OpInstall, Plugin: name, Err: err}
		}
	}

	return nil
}

// Available lists the plugin names InstallAll would process
func (s *PluginLifecycleService) Available(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.paths.PluginPath)
	if err != nil {
		return nil, plugindomain.ErrFilesystemOp("list", s.paths.PluginPath, err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !strings.HasSuffix(entry.Name(), s.paths.ArchiveExt) {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), s.paths.ArchiveExt)
		if name == "" {
			continue
		}
		names = append(names, name)
	}

	return names, nil
}

// Uninstall removes every installed plugin registered under pluginName.
// An empty registry or an unknown name is logged, not returned as an error.
func (s *PluginLifecycleService) Uninstall(ctx context.Context, pluginName string) error {
	result, err := s.uninstall(ctx, pluginName)
	s.record(OpUninstall, result, err)
	return err
}

func (s *PluginLifecycleService) uninstall(ctx context.Context, pluginName string) (string, error) {
	installed, err := s.registry.Read(ctx)
	if err != nil {
		return ResultError, err
	}

	if len(installed) == 0 {
		s.logger.Warn("no installed plugin")
		return ResultSkipped, nil
	}

	matches := installed.MatchName(pluginName)
	if len(matches) == 0 {
		s.logger.Warn("plugin is not installed, skipped uninstallation", "plugin", pluginName)
		return ResultSkipped, nil
	}

	for _, descriptor := range matches {
		if err := s.removePlugin(descriptor); err != nil {
			return ResultError, err
		}
		installed = installed.Without(descriptor.PluginID)
	}

	if err := s.registry.Write(ctx, installed); err != nil {
		return ResultError, err
	}
	s.recorder.SetInstalled(len(installed))

	for _, descriptor := range matches {
		s.logger.Info("successfully uninstalled plugin", "plugin", pluginName, "id", descriptor.PluginID)
	}
	return ResultOK, nil
}

// UninstallAll removes every installed plugin and empties the registry
func (s *PluginLifecycleService) UninstallAll(ctx context.Context) error {
	result, err := s.uninstallAll(ctx)
	s.record(OpUninstall, result, err)
	return err
}

func (s *PluginLifecycleService) uninstallAll(ctx context.Context) (string, error) {
	installed, err := s.registry.Read(ctx)
	if err != nil {
		return ResultError, err
	}

	if len(installed) == 0 {
		s.logger.Warn("no installed plugin")
		return ResultSkipped, nil
	}

	for _, descriptor := range installed {
		if err := s.removePlugin(descriptor); err != nil {
			return ResultError, &plugindomain.OperationError{Op: OpUninstall, Plugin: descriptor.PluginName, Err: err}
		}
	}

	if err := s.registry.Write(ctx, plugindomain.Registry{}); err != nil {
		return ResultError, err
	}
	s.recorder.SetInstalled(0)

	s.logger.Info("successfully uninstalled all plugins", "count", len(installed))
	return ResultOK, nil
}

// Reinstall uninstalls then installs pluginName. It is recorded as a single
// reinstall operation.
func (s *PluginLifecycleService) Reinstall(ctx context.Context, pluginName string) error {
	err := s.reinstall(ctx, pluginName)
	s.record(OpReinstall, ResultOK, err)
	return err
}

func (s *PluginLifecycleService) reinstall(ctx context.Context, pluginName string) error {
	if _, err := s.uninstall(ctx, pluginName); err != nil {
		return err
	}
	if _, err := s.install(ctx, pluginName); err != nil {
		return err
	}

	s.logger.Info("reinstalled plugin", "plugin", pluginName)
	return nil
}

// ReinstallAll uninstalls every plugin then installs every available archive.
// It is recorded as a single reinstall operation.
func (s *PluginLifecycleService) ReinstallAll(ctx context.Context) error {
	err := s.reinstallAll(ctx)
	s.record(OpReinstall, ResultOK, err)
	return err
}

func (s *PluginLifecycleService) reinstallAll(ctx context.Context) error {
	if _, err := s.uninstallAll(ctx); err != nil {
		return err
	}
	err := s.installAll(ctx, func(ctx context.Context, name string) error {
		_, err := s.install(ctx, name)
		return err
	})
	if err != nil {
		return err
	}

	s.logger.Info("reinstalled all plugins")
	return nil
}

// List returns the registered plugins along with what exists on disk for each
func (s *PluginLifecycleService) List(ctx context.Context) ([]plugindomain.InstalledPlugin, error) {
	installed, err := s.registry.Read(ctx)
	if err != nil {
		return nil, err
	}

	plugins := make([]plugindomain.InstalledPlugin, 0, len(installed))
	for _, descriptor := range installed {
		installPath := s.installDir(descriptor.PluginID)
		configPath := s.configDir(descriptor.PluginID)
		plugins = append(plugins, plugindomain.InstalledPlugin{
			Descriptor:   descriptor,
			InstallPath:  installPath,
			ConfigPath:   configPath,
			PayloadFound: fsutil.Exists(installPath),
			ConfigFound:  fsutil.Exists(configPath),
		})
	}

	sort.SliceStable(plugins, func(i, j int) bool {
		return plugins[i].PluginName < plugins[j].PluginName
	})

	s.recorder.SetInstalled(len(installed))
	return plugins, nil
}

// Private methods

// placePayload moves the extracted plugin into its installation directory and
// relocates the declared config subtree into the config root
func (s *PluginLifecycleService) placePayload(extractedDir string, manifest plugindomain.Manifest) error {
	installPath := s.installDir(manifest.PluginID)

	if removed, err := fsutil.RemoveTree(installPath); err != nil {
		return err
	} else if removed {
		s.logger.Debug("removed existing installation directory", "path", installPath)
	}

	if err := fsutil.MoveTree(extractedDir, installPath); err != nil {
		return err
	}

	if !manifest.HasConfig() {
		return nil
	}

	configSrc := filepath.Join(installPath, filepath.FromSlash(manifest.ConfigRelPath()))
	info, err := os.Stat(configSrc)
	if err != nil {
		return plugindomain.ErrFilesystemOp("locate config", configSrc, err)
	}
	if !info.IsDir() {
		return plugindomain.ErrFilesystemOp("locate config", configSrc, errors.New("not a directory"))
	}

	configDst := s.configDir(manifest.PluginID)
	if _, err := fsutil.RemoveTree(configDst); err != nil {
		return err
	}

	if err := fsutil.CopyTree(configSrc, configDst); err != nil {
		return err
	}
	if _, err := fsutil.RemoveTree(configSrc); err != nil {
		return err
	}

	s.logger.Debug("relocated plugin config", "id", manifest.PluginID, "path", configDst)
	return nil
}

// removePlugin deletes the installation and config directories of one plugin.
// Directories that are already gone are logged and tolerated.
func (s *PluginLifecycleService) removePlugin(descriptor plugindomain.Descriptor) error {
	if !plugindomain.ValidPluginID(descriptor.PluginID) {
		return plugindomain.ErrFilesystemOp("remove plugin", descriptor.PluginID, errors.New("invalid plugin id"))
	}

	installPath := s.installDir(descriptor.PluginID)
	if err := directoryOrMissing(installPath); err != nil {
		return err
	}
	removed, err := fsutil.RemoveTree(installPath)
	if err != nil {
		return err
	}
	if !removed {
		s.logger.Warn("installation directory missing", "id", descriptor.PluginID, "path", installPath)
	}

	configPath := s.configDir(descriptor.PluginID)
	if err := directoryOrMissing(configPath); err != nil {
		return err
	}
	removed, err = fsutil.RemoveTree(configPath)
	if err != nil {
		return err
	}
	if !removed {
		s.logger.Debug("no config directory to remove", "id", descriptor.PluginID, "path", configPath)
	}

	return nil
}

// rollback removes the directories of a plugin whose registration did not complete
func (s *PluginLifecycleService) rollback(descriptor plugindomain.Descriptor) {
	if err := s.removePlugin(descriptor); err != nil {
		s.logger.Error("failed to roll back partial installation", "id", descriptor.PluginID, "error", err)
	}
}

func (s *PluginLifecycleService) cleanupScratch() {
	if _, err := fsutil.RemoveTree(s.paths.TempPath); err != nil {
		s.logger.Error("failed to clean up scratch directory", "path", s.paths.TempPath, "error", err)
	}
}

func (s *PluginLifecycleService) archivePath(pluginName string) string {
	return filepath.Join(s.paths.PluginPath, pluginName+s.paths.ArchiveExt)
}

func (s *PluginLifecycleService) installDir(pluginID string) string {
	return filepath.Join(s.paths.InstallPath, pluginID)
}

func (s *PluginLifecycleService) configDir(pluginID string) string {
	return filepath.Join(s.paths.ConfigPath, pluginID)
}

func (s *PluginLifecycleService) record(operation, result string, err error) {
	if err != nil {
		result = ResultError
	}
	s.recorder.Record(operation, result)
}

// directoryOrMissing refuses paths that exist as anything but a directory
func directoryOrMissing(path string) error {
	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return plugindomain.ErrFilesystemOp("stat", path, err)
	}
	if !info.IsDir() {
		return plugindomain.ErrFilesystemOp("replace", path, errors.New("exists and is not a directory"))
	}
	return nil
}

func validPluginName(name string) bool {
	return plugindomain.ValidPluginID(name)
}

type noopRecorder struct{}

func (noopRecorder) Record(string, string) {}
func (noopRecorder) SetInstalled(int)      {}
