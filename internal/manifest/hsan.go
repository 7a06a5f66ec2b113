package manifest

import (
	"fmt"
	"strings"
)

// hsanKeys is the subset of manifest Attributes copied verbatim into an
// HSAN entry; BuildHSANEntry adds RouteMask and Representative from
// arrangementProperties on top of these.
var hsanKeys = []string{
	"AlbumArt", "AlbumName", "AlbumNameSort", "ArrangementName", "ArtistName",
	"ArtistNameSort", "CentOffset", "DLC", "DLCKey", "DNA_Chords", "DNA_Riffs",
	"DNA_Solo", "EasyMastery", "LeaderboardChallengeRating", "ManifestUrn",
	"MasterID_RDV", "MediumMastery", "NotesEasy", "NotesHard", "NotesMedium",
	"PersistentID", "SKU", "Shipping", "SongDiffEasy", "SongDiffHard",
	"SongDiffMed", "SongDifficulty", "SongKey", "SongLength", "SongName",
	"SongNameSort", "SongYear", "Tuning",
}

// HSANEntry is one arrangement's header entry: the subset of its manifest
// attributes the game's header database needs, keyed by entry id.
type HSANEntry struct {
	ID         string
	Attributes map[string]interface{}
}

// BuildHSANEntry projects a Manifest down to hsanKeys plus RouteMask and
// Representative, lifted from arrangementProperties.
func BuildHSANEntry(m *Manifest) *HSANEntry {
	attrs := make(map[string]interface{}, len(hsanKeys)+2)
	for _, k := range hsanKeys {
		if v, ok := m.Attributes[k]; ok {
			attrs[k] = v
		}
	}
	if props, ok := m.Attributes["arrangementProperties"].(map[string]interface{}); ok {
		attrs["RouteMask"] = props["RouteMask"]
		attrs["Representative"] = props["represent"]
	}
	return &HSANEntry{ID: m.EntryID, Attributes: attrs}
}

// xblockTemplate is the fixed per-entity XML fragment the game's aggregate
// asset database (xblock) expects, one per arrangement entry.
const xblockTemplate = `    <entity id="%s" modelName="RSEnumerable_Song" name="%s_%s" iterations="0">
      <properties>
        <property name="Header">
          <set value="urn:database:hsan-db:songs_dlc_%s" />
        </property>
        <property name="Manifest">
          <set value="urn:database:json-db:%s_%s" />
        </property>
        <property name="SngAsset">
          <set value="urn:application:musicgame-song:%s_%s" />
        </property>
        <property name="AlbumArtSmall">
          <set value="urn:image:dds:album_%s_64" />
        </property>
        <property name="AlbumArtMedium">
          <set value="urn:image:dds:album_%s_128" />
        </property>
        <property name="AlbumArtLarge">
          <set value="urn:image:dds:album_%s_256" />
        </property>
        <property name="LyricArt">
          <set value="" />
        </property>
        <property name="ShowLightsXMLAsset">
          <set value="urn:application:xml:%s_showlights" />
        </property>
        <property name="SoundBank">
          <set value="urn:audio:wwise-sound-bank:song_%s" />
        </property>
        <property name="PreviewSoundBank">
          <set value="urn:audio:wwise-sound-bank:song_%s_preview" />
        </property>
      </properties>
    </entity>`

// XBlockEntity renders one entity fragment for internalName (the package's
// DLC key) and arrangementName, keyed by entryID.
func XBlockEntity(entryID, internalName, arrangementName string) string {
	lowerArr := strings.ToLower(arrangementName)
	return fmt.Sprintf(xblockTemplate,
		entryID, internalName, arrangementName,
		internalName,
		internalName, lowerArr,
		internalName, lowerArr,
		internalName, internalName, internalName,
		internalName,
		internalName, internalName,
	)
}

// XBlockDocument wraps a set of entity fragments in the enclosing
// <game><entitySet> document the game expects for one DLC package.
func XBlockDocument(entities []string) string {
	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\" encoding=\"utf-8\"?>\n<game>\n  <entitySet>")
	for _, e := range entities {
		b.WriteString("\n")
		b.WriteString(e)
	}
	b.WriteString("\n  </entitySet>\n</game>")
	return b.String()
}
