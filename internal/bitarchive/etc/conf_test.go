package etc

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseNodeConf(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "node.json")
	jsonConf := `{"node_id": 1, "replica_id": "R2", "port": 8802, "store": {"driver": "afs", "path": "mem://localhost/r2"}}`
	if err := os.WriteFile(jsonPath, []byte(jsonConf), 0644); err != nil {
		t.Fatal(err)
	}
	conf := ParseNodeConf(jsonPath)
	if conf.NodeId != 1 || conf.ReplicaId != "R2" || conf.Port != 8802 || conf.Store.Driver != "afs" {
		t.Fatalf("unexpected conf %+v", conf)
	}
	if conf.Host != "127.0.0.1" || conf.LogLevel != "info" {
		t.Fatalf("defaults were lost: %+v", conf)
	}

	tomlPath := filepath.Join(dir, "node.toml")
	tomlConf := "node_id = 2\nreplica_id = \"CS\"\nkind = \"checksum\"\n\n[store]\ndriver = \"memory\"\n"
	if err := os.WriteFile(tomlPath, []byte(tomlConf), 0644); err != nil {
		t.Fatal(err)
	}
	conf = ParseNodeConf(tomlPath)
	if conf.NodeId != 2 || conf.ReplicaId != "CS" || conf.Kind != "checksum" || conf.Store.Driver != "memory" {
		t.Fatalf("unexpected conf %+v", conf)
	}
}
