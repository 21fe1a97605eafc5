package help

const ColdstartYAML = `# blocklist-curator Quick Start

output_formats:
  Hostsfile: "one '0.0.0.0 <entry>' line per entry, one file per tag"
  Lua: "Lua table literal 'return { ... }' for DNS servers with Lua hooks"

commands:
  basic_run: |
    blocklist-curator run --config blocklists.yaml

  force_refetch: |
    blocklist-curator run --config blocklists.yaml --force

  check_config: |
    blocklist-curator lists --config blocklists.yaml

  recent_runs: |
    blocklist-curator history

  run_details: |
    blocklist-curator history show <run-id>

  continuous: |
    blocklist-curator watch --config blocklists.yaml --schedule "0 */6 * * *"

config_example: |
  tmp_dir: /var/cache/blocklist-curator
  out_dir: /etc/dns/blocklists
  out_format: Hostsfile
  lists:
    - id: stevenblack
      source: https://raw.githubusercontent.com/StevenBlack/hosts/master/hosts
      tags: [ads, malware]
      regex: '^0\.0\.0\.0 (.*)$'
    - id: packed-feed
      source: https://feeds.example.net/malware.tar.gz
      tags: [malware]
      regex: '^([a-z0-9.-]+)$'
      compression:
        type: TarGz
        archive_list_file: data/domains.txt

cache_system:
  - "Fetched artifacts live in tmp_dir/artifacts, one file plus .meta sidecar per list"
  - "Reruns revalidate with a HEAD request (ETag, then Content-Length) before refetching"
  - "Editing a list descriptor invalidates its cached artifact"
  - "summary.yaml and last_conf.json in tmp_dir describe the latest run"
  - "Runs are journaled in tmp_dir/journal.db"

output_invariants:
  - "Entries are deduplicated exactly and sorted, so unchanged inputs produce byte-identical files"
  - "One output document per tag, written atomically, empty tags included"
  - "A failing list never blocks the others"

error_behavior:
  - "Config errors: fail fast before fetching, exit 2"
  - "Per-list fetch/decompress/extract errors: logged and reported in the summary"
  - "Exit codes: 0=success or partial failure, 1=every list failed, 2=setup failure"
`
