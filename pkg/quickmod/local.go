package quickmod

import (
	"archive/zip"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
)

// modInfoFile is the metadata file Forge mods embed in their jar.
const modInfoFile = "mcmod.info"

type modInfo struct {
	ModID       string `json:"modid"`
	Name        string `json:"name"`
	Description string `json:"description"`
	URL         string `json:"url"`
}

// ReadLocalMod reads the metadata of a mod file. Jars without readable
// mcmod.info metadata are described by their file name.
func ReadLocalMod(path string) (LocalMod, error) {
	local := LocalMod{Path: path}
	zr, err := zip.OpenReader(path)
	if err != nil {
		return local, err
	}
	defer zr.Close()

	for _, f := range zr.File {
		if !strings.EqualFold(f.Name, modInfoFile) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			break
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			break
		}
		if info, ok := parseModInfo(data); ok {
			local.ModID = info.ModID
			local.Name = info.Name
			local.Description = info.Description
			local.HomeURL = info.URL
		}
		break
	}

	if local.ModID == "" && local.Name == "" {
		local.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return local, nil
}

// parseModInfo accepts both the bare list and the modListVersion 2 layout.
func parseModInfo(data []byte) (modInfo, bool) {
	var list []modInfo
	if err := json.Unmarshal(data, &list); err != nil {
		var v2 struct {
			ModList []modInfo `json:"modList"`
		}
		if err := json.Unmarshal(data, &v2); err != nil {
			return modInfo{}, false
		}
		list = v2.ModList
	}
	if len(list) == 0 {
		return modInfo{}, false
	}
	return list[0], true
}
