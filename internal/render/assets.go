package render

// staticAssets are written verbatim into every rendered variant so the
// artefact stands alone: no network access, no shared asset directory.
var staticAssets = map[string]string{
	"clara.css": claraCSS,
	"clara.js":  claraJS,
}

const claraCSS = `body {
  font-family: Georgia, "Times New Roman", serif;
  max-width: 46rem;
  margin: 0 auto;
  padding: 1rem;
  line-height: 2.1;
}
header h1 { font-size: 1.4rem; margin-bottom: 0.2rem; }
nav { display: flex; justify-content: space-between; font-size: 0.9rem; }
.page-number { color: #666; }
.segment { cursor: pointer; border-radius: 3px; }
.segment:hover { background: #eef3ff; }
.segment.playing { background: #dce8ff; }
.word { position: relative; }
.word:hover { background: #ffe9b3; }
.popup {
  display: none;
  position: absolute;
  left: 0;
  top: 1.6em;
  z-index: 10;
  background: #fffef2;
  border: 1px solid #c9b458;
  border-radius: 4px;
  padding: 0.3em 0.6em;
  font-size: 0.8rem;
  line-height: 1.5;
  white-space: nowrap;
}
.word:hover .popup { display: block; }
.popup span { display: block; }
.popup .gloss { font-weight: bold; }
.popup .lemma::before { content: "lemma: "; color: #888; }
.popup .pinyin { color: #246; }
.popup .phonetic { font-family: "DejaVu Sans", sans-serif; color: #464; }
.popup .tile { display: block; max-width: 8rem; margin-top: 0.3em; }
.page-image img { max-width: 100%; border-radius: 4px; }
body.phonetic .segment { margin-right: 0.6em; }
`

const claraJS = `(function () {
  var player = new Audio();
  var stopAt = null;
  var current = null;

  player.addEventListener("timeupdate", function () {
    if (stopAt !== null && player.currentTime >= stopAt) {
      player.pause();
      stopAt = null;
      if (current) { current.classList.remove("playing"); current = null; }
    }
  });
  player.addEventListener("ended", function () {
    if (current) { current.classList.remove("playing"); current = null; }
  });

  function play(el, src, startMs, endMs) {
    if (current) { current.classList.remove("playing"); }
    current = el;
    el.classList.add("playing");
    if (player.src !== new URL(src, location.href).href) { player.src = src; }
    stopAt = endMs ? endMs / 1000 : null;
    player.currentTime = startMs ? startMs / 1000 : 0;
    player.play();
  }

  document.querySelectorAll(".segment[data-audio]").forEach(function (seg) {
    seg.addEventListener("click", function (ev) {
      if (ev.target.closest(".word[data-audio]") && ev.altKey) { return; }
      play(seg, seg.dataset.audio,
        parseInt(seg.dataset.start || "0", 10),
        parseInt(seg.dataset.end || "0", 10));
    });
  });

  document.querySelectorAll(".word[data-audio]").forEach(function (word) {
    word.addEventListener("click", function (ev) {
      if (!ev.altKey) { return; }
      ev.stopPropagation();
      play(word, word.dataset.audio, 0, 0);
    });
  });
})();
`
