package elastic

// indexSchema maps the finding fields that reporters filter and sort on
const indexSchema = `{
  "properties": {
    "scan_id": {"type": "keyword"},
    "check_id": {"type": "keyword"},
    "check_title": {"type": "text"},
    "provider": {"type": "keyword"},
    "service": {"type": "keyword"},
    "severity": {"type": "keyword"},
    "status": {"type": "keyword"},
    "status_detail": {"type": "text"},
    "resource_id": {"type": "keyword"},
    "resource_name": {"type": "keyword"},
    "resource_kind": {"type": "keyword"},
    "region": {"type": "keyword"},
    "categories": {"type": "keyword"},
    "timestamp": {"type": "date"}
  }
}`
